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

package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"axeberg.dev/os/pkg/pkgmgr"
)

func buildArchive(t *testing.T, manifest string, binaryPath string, content []byte) []byte {
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

	w, err = zw.Create(binaryPath)
	if err != nil {
		t.Fatalf("create %s: %v", binaryPath, err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatalf("write %s: %v", binaryPath, err)
	}

	w, err = zw.Create("checksums.txt")
	if err != nil {
		t.Fatalf("create checksums.txt: %v", err)
	}
	sum := pkgmgr.ComputeChecksum(content)
	if _, err := w.Write([]byte(sum.String() + "  " + binaryPath + "\n")); err != nil {
		t.Fatalf("write checksums.txt: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFSRegistryRoundTripsThroughManager(t *testing.T) {
	regDir := t.TempDir()
	dbDir := t.TempDir()

	entry := "name = \"hello\"\ndescription = \"a greeter\"\nkeywords = [\"greet\"]\nversions = [\"1.0.0\"]\n"
	if err := os.WriteFile(filepath.Join(regDir, "hello.toml"), []byte(entry), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}

	manifest := "\n[package]\nname = \"hello\"\nversion = \"1.0.0\"\n\n[[bin]]\nname = \"hello\"\npath = \"bin/hello.wasm\"\n"
	archive := buildArchive(t, manifest, "bin/hello.wasm", []byte("wasm-bytes"))
	if err := os.WriteFile(filepath.Join(regDir, "hello-1.0.0.axepkg"), archive, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	reg := newFSRegistry(regDir)
	mgr := pkgmgr.NewManager(reg, reg, dbDir)
	mgr.Installer.SetBinDir(filepath.Join(dbDir, "bin"))
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	id, err := mgr.Install("hello", pkgmgr.AnyVersionReq(), time.Now().Unix())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if id.Name != "hello" {
		t.Fatalf("got %+v", id)
	}

	installed, err := mgr.ListInstalled()
	if err != nil || len(installed) != 1 {
		t.Fatalf("ListInstalled: %v, %v, err %v", installed, len(installed), err)
	}
}
