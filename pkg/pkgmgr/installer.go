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
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Archive is a parsed .axepkg: a manifest, the WASM binaries it ships,
// and the per-file SHA-256 checksums the manifest's checksums.txt member
// records, per spec.md §6's archive layout.
type Archive struct {
	Manifest  PackageManifest
	Binaries  map[string][]byte
	Checksums map[string]Checksum
}

// ParseArchive decodes a .axepkg zip: package.toml, bin/*.wasm, and
// checksums.txt (one "hexdigest  path" line per binary, matching the
// conventional sha256sum(1) output format).
func ParseArchive(data []byte) (Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Archive{}, &InvalidArchiveError{Reason: err.Error()}
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return Archive{}, &InvalidArchiveError{Reason: err.Error()}
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Archive{}, &InvalidArchiveError{Reason: err.Error()}
		}
		files[f.Name] = content
	}

	manifestRaw, ok := files["package.toml"]
	if !ok {
		return Archive{}, &InvalidArchiveError{Reason: "missing package.toml"}
	}
	manifest, err := ParseManifest(manifestRaw)
	if err != nil {
		return Archive{}, err
	}

	checksums := make(map[string]Checksum)
	if raw, ok := files["checksums.txt"]; ok {
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}
			c, err := ChecksumFromHex(fields[0])
			if err != nil {
				return Archive{}, &InvalidArchiveError{Reason: "bad checksums.txt line: " + line}
			}
			checksums[fields[1]] = c
		}
	}

	binaries := make(map[string][]byte)
	for name, content := range files {
		if strings.HasPrefix(name, "bin/") {
			binaries[name] = content
		}
	}
	for _, b := range manifest.Binaries {
		if _, ok := binaries[b.Path]; !ok {
			return Archive{}, &InvalidArchiveError{Reason: "missing binary: " + b.Path}
		}
	}

	return Archive{Manifest: manifest, Binaries: binaries, Checksums: checksums}, nil
}

// VerifyAll checks every binary against its recorded checksum,
// concurrently: one goroutine per file. Every check runs to completion;
// the first error returned by any of them is reported.
func (a Archive) VerifyAll() error {
	var g errgroup.Group
	for path, content := range a.Binaries {
		path, content := path, content
		g.Go(func() error {
			sum, ok := a.Checksums[path]
			if !ok {
				return &InvalidArchiveError{Reason: "no checksum recorded for " + path}
			}
			return VerifyChecksum(content, sum)
		})
	}
	return g.Wait()
}

// ArchiveSource fetches a package's .axepkg archive bytes, the host-I/O
// collaborator the package-fetch suspension point in spec.md §5 blocks
// on.
type ArchiveSource interface {
	FetchArchive(id PackageID) ([]byte, error)
}

// Installer extracts archives onto the binary install directory and
// records them in the local database.
type Installer struct {
	db       *Database
	archives ArchiveSource
	binDir   string
	cacheDir string
}

// NewInstaller builds an installer around db and archives, using the
// spec's default /bin and cache-directory host mirrors.
func NewInstaller(db *Database, archives ArchiveSource) *Installer {
	return &Installer{db: db, archives: archives, binDir: BinDir, cacheDir: PathCache}
}

// SetBinDir overrides the directory binaries are written to, letting a
// caller outside the default /bin mapping (e.g. a CLI front-end running
// against a real host directory rather than the emulated VFS root)
// redirect installs.
func (ins *Installer) SetBinDir(dir string) { ins.binDir = dir }

// SetCacheDir overrides the downloaded-archive cache directory.
func (ins *Installer) SetCacheDir(dir string) { ins.cacheDir = dir }

// Install fetches, verifies, and unpacks pkg's archive, wiring its
// binaries into the install directory and recording it in the database.
func (ins *Installer) Install(pkg ResolvedPackage, now int64) error {
	data, err := ins.archives.FetchArchive(pkg.ID)
	if err != nil {
		return err
	}
	archive, err := ParseArchive(data)
	if err != nil {
		return err
	}
	if err := archive.VerifyAll(); err != nil {
		return err
	}
	if err := ins.writeBinaries(archive); err != nil {
		return err
	}
	return ins.db.RecordInstalled(pkg.ID, archive.Manifest, now)
}

// InstallLocal installs directly from a local .axepkg file path, the
// non-registry install path `axepkg install --local` drives.
func (ins *Installer) InstallLocal(path string) (PackageID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PackageID{}, err
	}
	archive, err := ParseArchive(data)
	if err != nil {
		return PackageID{}, err
	}
	if err := archive.VerifyAll(); err != nil {
		return PackageID{}, err
	}
	if err := ins.writeBinaries(archive); err != nil {
		return PackageID{}, err
	}
	id := NewPackageID(archive.Manifest.Name, archive.Manifest.Version)
	if err := ins.db.RecordInstalled(id, archive.Manifest, 0); err != nil {
		return PackageID{}, err
	}
	return id, nil
}

func (ins *Installer) writeBinaries(archive Archive) error {
	if err := os.MkdirAll(ins.binDir, 0o755); err != nil {
		return err
	}
	for _, b := range archive.Manifest.Binaries {
		content, ok := archive.Binaries[b.Path]
		if !ok {
			return &InvalidArchiveError{Reason: "missing binary: " + b.Path}
		}
		dest := filepath.Join(ins.binDir, b.Name+".wasm")
		if err := os.WriteFile(dest, content, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the binary named after the package (<name>.wasm) from
// the install directory; other binaries the package installed under
// different names are not removed. The database record itself is
// removed by the caller.
func (ins *Installer) Remove(pkg InstalledPackage) error {
	path := filepath.Join(ins.binDir, pkg.Name+".wasm")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Verify reports whether pkg's installed binary (<name>.wasm) exists and
// is non-empty. No checksum is recomputed or compared.
func (ins *Installer) Verify(pkg InstalledPackage) (bool, error) {
	path := filepath.Join(ins.binDir, pkg.Name+".wasm")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

// CleanCache removes every cached downloaded archive.
func (ins *Installer) CleanCache() error {
	entries, err := os.ReadDir(ins.cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(ins.cacheDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
