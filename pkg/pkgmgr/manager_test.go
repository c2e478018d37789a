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

import (
	"path/filepath"
	"testing"
)

// fakeWorld backs both Fetcher and ArchiveSource from in-memory package
// definitions, so Manager.Install can be exercised end to end without any
// real host I/O.
type fakeWorld struct {
	entries  map[string]string
	archives map[string][]byte
}

func (w fakeWorld) FetchPackage(name string) ([]byte, error) {
	body, ok := w.entries[name]
	if !ok {
		return nil, &PackageNotFoundError{Name: name}
	}
	return []byte(body), nil
}
func (w fakeWorld) FetchIndex() ([]byte, error) { return nil, nil }

func (w fakeWorld) FetchArchive(id PackageID) ([]byte, error) {
	data, ok := w.archives[id.String()]
	if !ok {
		return nil, &PackageNotFoundError{Name: id.Name}
	}
	return data, nil
}

func buildWorld(t *testing.T) fakeWorld {
	t.Helper()
	baseManifest := `
[package]
name = "base"
version = "1.0.0"

[[bin]]
name = "base"
path = "bin/base.wasm"
`
	topManifest := `
[package]
name = "top"
version = "1.0.0"

[[bin]]
name = "top"
path = "bin/top.wasm"

[dependencies]
base = "^1.0.0"
`
	return fakeWorld{
		entries: map[string]string{
			"base": entryTOML("1.0.0"),
			"top":  entryTOML("1.0.0"),
		},
		archives: map[string][]byte{
			"base-1.0.0": buildTestArchive(t, baseManifest, map[string][]byte{"bin/base.wasm": []byte("base-bytes")}, true),
			"top-1.0.0":  buildTestArchive(t, topManifest, map[string][]byte{"bin/top.wasm": []byte("top-bytes")}, true),
		},
	}
}

func TestManagerInstallResolvesAndInstallsDependencies(t *testing.T) {
	dir := t.TempDir()
	world := buildWorld(t)
	mgr := NewManager(world, world, dir)
	mgr.Installer.binDir = filepath.Join(dir, "bin")
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	id, err := mgr.Install("top", AnyVersionReq(), 42)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if id.Name != "top" {
		t.Fatalf("got %+v", id)
	}

	for _, name := range []string{"base", "top"} {
		ok, err := mgr.Database.IsInstalled(name, nil)
		if err != nil || !ok {
			t.Fatalf("%s should be installed, got %v, %v", name, ok, err)
		}
	}
}

func TestManagerRemoveFailsWithDependents(t *testing.T) {
	dir := t.TempDir()
	world := buildWorld(t)
	mgr := NewManager(world, world, dir)
	mgr.Installer.binDir = filepath.Join(dir, "bin")
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := mgr.Install("top", AnyVersionReq(), 1); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := mgr.Remove("base"); err == nil {
		t.Fatalf("removing a package with a dependent should fail")
	}
	if err := mgr.Remove("top"); err != nil {
		t.Fatalf("removing top: %v", err)
	}
	if err := mgr.Remove("base"); err != nil {
		t.Fatalf("base should now be removable: %v", err)
	}
}

func TestManagerInstallAlreadyInstalledFails(t *testing.T) {
	dir := t.TempDir()
	world := buildWorld(t)
	mgr := NewManager(world, world, dir)
	mgr.Installer.binDir = filepath.Join(dir, "bin")
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := mgr.Install("base", AnyVersionReq(), 1); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if _, err := mgr.Install("base", AnyVersionReq(), 1); err == nil {
		t.Fatalf("second install of the same version should fail as already installed")
	}
}
