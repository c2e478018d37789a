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

import "strings"

// Default filesystem layout for package manager state, rooted in the
// emulated VFS.
const (
	PathBase      = "/var/lib/pkg"
	PathDB        = "/var/lib/pkg/db"
	PathInstalled = "/var/lib/pkg/db/installed.toml"
	PathPackages  = "/var/lib/pkg/db/packages"
	PathCache     = "/var/lib/pkg/cache"
	PathRegistry  = "/var/lib/pkg/registry"
	BinDir        = "/bin"
)

// PackageID identifies one package at one version.
type PackageID struct {
	Name    string
	Version Version
}

// NewPackageID builds a PackageID.
func NewPackageID(name string, version Version) PackageID {
	return PackageID{Name: name, Version: version}
}

// ParsePackageID parses the "name-version" directory-name form, splitting
// at the last hyphen so names that themselves contain hyphens still
// parse correctly.
func ParsePackageID(s string) (PackageID, error) {
	pos := strings.LastIndexByte(s, '-')
	if pos < 0 {
		return PackageID{}, &InvalidPackageIDError{Raw: s}
	}
	name, versionStr := s[:pos], s[pos+1:]
	v, err := ParseVersion(versionStr)
	if err != nil {
		return PackageID{}, &InvalidPackageIDError{Raw: s}
	}
	return NewPackageID(name, v), nil
}

// DirName is the on-disk directory name for this package.
func (id PackageID) DirName() string { return id.String() }

// String renders "name-version".
func (id PackageID) String() string { return id.Name + "-" + id.Version.String() }

// Manager ties the database, registry, installer, and resolver together
// into the package manager's public surface.
type Manager struct {
	Database  *Database
	Registry  *PackageRegistry
	Installer *Installer
	Resolver  *DependencyResolver
	archives  ArchiveSource
}

// NewManager constructs a package manager around the given archive
// fetcher and a local-database root directory.
func NewManager(fetch Fetcher, archives ArchiveSource, dbRoot string) *Manager {
	db := NewDatabase(dbRoot)
	registry := NewPackageRegistry(fetch)
	return &Manager{
		Database:  db,
		Registry:  registry,
		Installer: NewInstaller(db, archives),
		Resolver:  NewDependencyResolver(),
		archives:  archives,
	}
}

// Init prepares the on-disk database layout.
func (m *Manager) Init() error { return m.Database.Init() }

// archiveManifestSource adapts an ArchiveSource into a ManifestSource by
// fetching just enough of the archive to read its manifest, so the
// resolver can walk real transitive dependencies instead of the
// registry-only metadata stub the original resolver fell back to.
type archiveManifestSource struct{ archives ArchiveSource }

func (s archiveManifestSource) FetchManifest(name string, version Version) (PackageManifest, error) {
	data, err := s.archives.FetchArchive(NewPackageID(name, version))
	if err != nil {
		return PackageManifest{}, err
	}
	archive, err := ParseArchive(data)
	if err != nil {
		return PackageManifest{}, err
	}
	return archive.Manifest, nil
}

// Install resolves name's dependency graph (latest version if req is the
// zero VersionReq) and installs every package not already present, in
// dependency order.
func (m *Manager) Install(name string, req VersionReq, now int64) (PackageID, error) {
	entry, err := m.Registry.FetchPackage(name)
	if err != nil {
		return PackageID{}, err
	}
	best, ok := entry.BestVersion(req)
	if !ok {
		return PackageID{}, &NoMatchingVersionError{Name: name, Requirement: req.String()}
	}
	id := NewPackageID(name, best)

	if installed, err := m.Database.IsInstalled(id.Name, &id.Version); err != nil {
		return PackageID{}, err
	} else if installed {
		return PackageID{}, &AlreadyInstalledError{ID: id}
	}

	resolved, err := m.Resolver.Resolve(id, m.Registry, archiveManifestSource{m.archives})
	if err != nil {
		return PackageID{}, err
	}

	for _, pkg := range resolved {
		installed, err := m.Database.IsInstalled(pkg.ID.Name, &pkg.ID.Version)
		if err != nil {
			return PackageID{}, err
		}
		if installed {
			continue
		}
		if err := m.Installer.Install(pkg, now); err != nil {
			return PackageID{}, err
		}
	}
	return id, nil
}

// UpgradeAll re-installs every installed package whose registry entry
// reports a newer version than the one currently installed.
func (m *Manager) UpgradeAll(now int64) ([]PackageID, error) {
	installed, err := m.ListInstalled()
	if err != nil {
		return nil, err
	}
	var upgraded []PackageID
	for _, pkg := range installed {
		entry, err := m.Registry.FetchPackage(pkg.Name)
		if err != nil {
			continue
		}
		current, err := pkg.Version()
		if err != nil {
			continue
		}
		latest, ok := entry.BestVersion(AnyVersionReq())
		if !ok || !current.LessThan(latest) {
			continue
		}
		if err := m.Remove(pkg.Name); err != nil {
			return upgraded, err
		}
		newID, err := m.Install(pkg.Name, AnyVersionReq(), now)
		if err != nil {
			return upgraded, err
		}
		upgraded = append(upgraded, newID)
	}
	return upgraded, nil
}

// InstallLocal installs a package from a local .axepkg archive path,
// bypassing the registry and resolver entirely.
func (m *Manager) InstallLocal(path string) (PackageID, error) {
	return m.Installer.InstallLocal(path)
}

// Remove uninstalls a package by name, failing if anything installed
// still depends on it.
func (m *Manager) Remove(name string) error {
	installed, ok, err := m.Database.GetInstalled(name)
	if err != nil {
		return err
	}
	if !ok {
		return &NotInstalledError{Name: name}
	}

	dependents, err := m.Database.GetDependents(name)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return &HasDependentsError{Package: name, Dependents: dependents}
	}

	if err := m.Installer.Remove(installed); err != nil {
		return err
	}
	return m.Database.RemoveInstalled(name)
}

// ListInstalled returns every installed package record.
func (m *Manager) ListInstalled() ([]InstalledPackage, error) { return m.Database.ListInstalled() }

// Verify runs Installer.Verify on every installed package: a package
// passes when its <name>.wasm binary exists and is non-empty. No checksum
// is recomputed.
func (m *Manager) Verify() (map[string]bool, error) {
	installed, err := m.ListInstalled()
	if err != nil {
		return nil, err
	}
	results := make(map[string]bool, len(installed))
	for _, pkg := range installed {
		ok, err := m.Installer.Verify(pkg)
		if err != nil {
			return nil, err
		}
		results[pkg.Name] = ok
	}
	return results, nil
}

// CleanCache evicts the downloaded-archive cache.
func (m *Manager) CleanCache() error { return m.Installer.CleanCache() }
