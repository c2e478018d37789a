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
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func buildTestArchive(t *testing.T, manifest string, binaries map[string][]byte, includeChecksums bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("package.toml")
	if err != nil {
		t.Fatalf("create package.toml: %v", err)
	}
	if _, err := w.Write([]byte(manifest)); err != nil {
		t.Fatalf("write package.toml: %v", err)
	}

	var checksums bytes.Buffer
	for path, content := range binaries {
		w, err := zw.Create(path)
		if err != nil {
			t.Fatalf("create %s: %v", path, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		checksums.WriteString(ComputeChecksum(content).String() + "  " + path + "\n")
	}
	if includeChecksums {
		w, err := zw.Create("checksums.txt")
		if err != nil {
			t.Fatalf("create checksums.txt: %v", err)
		}
		if _, err := w.Write(checksums.Bytes()); err != nil {
			t.Fatalf("write checksums.txt: %v", err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const testManifest = `
[package]
name = "hello"
version = "1.0.0"

[[bin]]
name = "hello"
path = "bin/hello.wasm"
`

func TestParseArchiveRoundTrip(t *testing.T) {
	data := buildTestArchive(t, testManifest, map[string][]byte{"bin/hello.wasm": []byte("wasm-bytes")}, true)
	archive, err := ParseArchive(data)
	if err != nil {
		t.Fatalf("ParseArchive: %v", err)
	}
	if archive.Manifest.Name != "hello" {
		t.Fatalf("got %+v", archive.Manifest)
	}
	if err := archive.VerifyAll(); err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
}

func TestParseArchiveMissingBinaryFails(t *testing.T) {
	data := buildTestArchive(t, testManifest, map[string][]byte{}, true)
	if _, err := ParseArchive(data); err == nil {
		t.Fatalf("archive missing a manifest-declared binary should fail to parse")
	}
}

func TestArchiveVerifyAllDetectsCorruption(t *testing.T) {
	data := buildTestArchive(t, testManifest, map[string][]byte{"bin/hello.wasm": []byte("wasm-bytes")}, true)
	archive, err := ParseArchive(data)
	if err != nil {
		t.Fatalf("ParseArchive: %v", err)
	}
	archive.Binaries["bin/hello.wasm"] = []byte("tampered")
	if err := archive.VerifyAll(); err == nil {
		t.Fatalf("VerifyAll should detect a tampered binary")
	}
}

type fakeArchiveSource struct{ data map[string][]byte }

func (f fakeArchiveSource) FetchArchive(id PackageID) ([]byte, error) {
	data, ok := f.data[id.String()]
	if !ok {
		return nil, &PackageNotFoundError{Name: id.Name}
	}
	return data, nil
}

func TestInstallerInstallLocalWritesBinaryAndRecords(t *testing.T) {
	dir := t.TempDir()
	db := NewDatabase(dir)
	if err := db.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	binDir := filepath.Join(dir, "bin")
	ins := NewInstaller(db, nil)
	ins.binDir = binDir

	data := buildTestArchive(t, testManifest, map[string][]byte{"bin/hello.wasm": []byte("wasm-bytes")}, true)
	path := filepath.Join(dir, "hello-1.0.0.axepkg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	id, err := ins.InstallLocal(path)
	if err != nil {
		t.Fatalf("InstallLocal: %v", err)
	}
	if id.Name != "hello" {
		t.Fatalf("got %+v", id)
	}

	ok, err := db.IsInstalled("hello", nil)
	if err != nil || !ok {
		t.Fatalf("hello should be recorded installed, got %v, %v", ok, err)
	}
}
