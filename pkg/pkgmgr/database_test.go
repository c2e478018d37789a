// Copyright 2024 The axeberg Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pkgmgr

import "testing"

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db := NewDatabase(t.TempDir())
	if err := db.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return db
}

func TestDatabaseRecordAndIsInstalled(t *testing.T) {
	db := newTestDatabase(t)
	id := NewPackageID("hello", New(1, 0, 0))
	if err := db.RecordInstalled(id, PackageManifest{Name: "hello"}, 100); err != nil {
		t.Fatalf("RecordInstalled: %v", err)
	}

	ok, err := db.IsInstalled("hello", nil)
	if err != nil || !ok {
		t.Fatalf("IsInstalled = %v, %v", ok, err)
	}
	other := New(2, 0, 0)
	ok, err = db.IsInstalled("hello", &other)
	if err != nil || ok {
		t.Fatalf("IsInstalled at wrong version should be false, got %v, %v", ok, err)
	}
}

func TestDatabaseGetDependents(t *testing.T) {
	db := newTestDatabase(t)
	base := NewPackageID("base", New(1, 0, 0))
	if err := db.RecordInstalled(base, PackageManifest{Name: "base"}, 1); err != nil {
		t.Fatalf("record base: %v", err)
	}
	top := NewPackageID("top", New(1, 0, 0))
	manifest := PackageManifest{Name: "top", Dependencies: []Dependency{{Name: "base"}}}
	if err := db.RecordInstalled(top, manifest, 2); err != nil {
		t.Fatalf("record top: %v", err)
	}

	deps, err := db.GetDependents("base")
	if err != nil {
		t.Fatalf("GetDependents: %v", err)
	}
	if len(deps) != 1 || deps[0] != "top" {
		t.Fatalf("dependents = %v", deps)
	}
}

func TestDatabaseRemoveInstalled(t *testing.T) {
	db := newTestDatabase(t)
	id := NewPackageID("hello", New(1, 0, 0))
	if err := db.RecordInstalled(id, PackageManifest{Name: "hello"}, 1); err != nil {
		t.Fatalf("RecordInstalled: %v", err)
	}
	if err := db.RemoveInstalled("hello"); err != nil {
		t.Fatalf("RemoveInstalled: %v", err)
	}
	ok, err := db.IsInstalled("hello", nil)
	if err != nil || ok {
		t.Fatalf("package should no longer be installed, got %v, %v", ok, err)
	}
}

func TestDatabaseListInstalledSorted(t *testing.T) {
	db := newTestDatabase(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		id := NewPackageID(name, New(1, 0, 0))
		if err := db.RecordInstalled(id, PackageManifest{Name: name}, 1); err != nil {
			t.Fatalf("record %s: %v", name, err)
		}
	}
	list, err := db.ListInstalled()
	if err != nil {
		t.Fatalf("ListInstalled: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if list[i].Name != name {
			t.Fatalf("list[%d] = %s, want %s", i, list[i].Name, name)
		}
	}
}
