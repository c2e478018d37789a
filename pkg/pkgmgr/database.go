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
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
)

// InstalledPackage is one record in the local install database.
type InstalledPackage struct {
	Name         string   `toml:"name"`
	VersionRaw   string   `toml:"version"`
	Dependencies []string `toml:"dependencies"`
	InstalledAt  int64    `toml:"installed_at"`
}

// Version parses the record's stored version string.
func (p InstalledPackage) Version() (Version, error) { return ParseVersion(p.VersionRaw) }

// installedDoc is the on-disk shape of installed.toml.
type installedDoc struct {
	Packages []InstalledPackage `toml:"packages"`
}

// Database is the local record of installed packages (name, version,
// non-optional dependency names, install time; manifests themselves are
// not stored), guarded by a real on-disk advisory lock distinct from the
// emulated in-kernel byte-range locks: two host processes sharing one
// package root must not race the install database the way two guest
// tasks race an emulated file lock.
type Database struct {
	root string
	mu   sync.Mutex
}

// NewDatabase roots a package database at dir (conventionally
// PathDB's host-side mirror).
func NewDatabase(dir string) *Database {
	return &Database{root: dir}
}

// Init creates the database directory layout.
func (d *Database) Init() error {
	for _, sub := range []string{"", "packages"} {
		if err := os.MkdirAll(filepath.Join(d.root, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) installedPath() string { return filepath.Join(d.root, "installed.toml") }
func (d *Database) lockPath() string      { return filepath.Join(d.root, ".installed.lock") }

// withLock runs fn while holding an exclusive on-disk lock over the
// install database file, released on return.
func (d *Database) withLock(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fl := flock.New(d.lockPath())
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}

func (d *Database) readLocked() (installedDoc, error) {
	var doc installedDoc
	data, err := os.ReadFile(d.installedPath())
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return installedDoc{}, err
	}
	return doc, nil
}

func (d *Database) writeLocked(doc installedDoc) error {
	f, err := os.Create(d.installedPath())
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(doc)
}

// IsInstalled reports whether name is installed, and if version is
// non-nil, whether it is installed at exactly that version.
func (d *Database) IsInstalled(name string, version *Version) (bool, error) {
	var found bool
	err := d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		for _, p := range doc.Packages {
			if p.Name != name {
				continue
			}
			if version == nil {
				found = true
				return nil
			}
			pv, err := p.Version()
			if err == nil && pv.Equal(*version) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// GetInstalled returns the install record for name, if any.
func (d *Database) GetInstalled(name string) (InstalledPackage, bool, error) {
	var pkg InstalledPackage
	var ok bool
	err := d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		for _, p := range doc.Packages {
			if p.Name == name {
				pkg, ok = p, true
				return nil
			}
		}
		return nil
	})
	return pkg, ok, err
}

// RecordInstalled appends or replaces the install record for id.
func (d *Database) RecordInstalled(id PackageID, manifest PackageManifest, installedAt int64) error {
	return d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		deps := make([]string, 0, len(manifest.Dependencies))
		for _, dep := range manifest.Dependencies {
			if !dep.Optional {
				deps = append(deps, dep.Name)
			}
		}
		rec := InstalledPackage{
			Name:         id.Name,
			VersionRaw:   id.Version.String(),
			Dependencies: deps,
			InstalledAt:  installedAt,
		}
		replaced := false
		for i, p := range doc.Packages {
			if p.Name == id.Name {
				doc.Packages[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Packages = append(doc.Packages, rec)
		}
		return d.writeLocked(doc)
	})
}

// RemoveInstalled deletes name's install record.
func (d *Database) RemoveInstalled(name string) error {
	return d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		out := doc.Packages[:0]
		for _, p := range doc.Packages {
			if p.Name != name {
				out = append(out, p)
			}
		}
		doc.Packages = out
		return d.writeLocked(doc)
	})
}

// ListInstalled returns every install record, sorted by name.
func (d *Database) ListInstalled() ([]InstalledPackage, error) {
	var out []InstalledPackage
	err := d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		out = append(out, doc.Packages...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// GetDependents returns the name of every installed package whose
// manifest lists name as a non-optional dependency.
func (d *Database) GetDependents(name string) ([]string, error) {
	var out []string
	err := d.withLock(func() error {
		doc, err := d.readLocked()
		if err != nil {
			return err
		}
		for _, p := range doc.Packages {
			for _, dep := range p.Dependencies {
				if dep == name {
					out = append(out, p.Name)
					break
				}
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
