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
	"strings"

	"github.com/BurntSushi/toml"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Dependency is a single manifest-declared dependency.
type Dependency struct {
	Name       string `toml:"name"`
	VersionReq string `toml:"version"`
	Optional   bool   `toml:"optional"`
}

// BinaryEntry names one WASM command binary a package installs, and its
// expected per-file checksum once the distributed archive is fetched.
type BinaryEntry struct {
	Name     string `toml:"name"`
	Path     string `toml:"path"`
	Checksum string `toml:"checksum,omitempty"`

	// Capabilities borrows specs-go's plain string-slice convention for
	// declaring what a binary is allowed to touch; no OCI runtime
	// semantics are implemented, this is metadata only.
	Capabilities []string `toml:"capabilities,omitempty"`
}

// toLinuxCapabilities adapts a binary's declared capability strings into
// the shape specs-go's LinuxCapabilities groups them under, purely so
// manifest validation can reuse the library's naming convention instead
// of inventing a parallel one.
func (b BinaryEntry) toLinuxCapabilities() *specs.LinuxCapabilities {
	if len(b.Capabilities) == 0 {
		return nil
	}
	return &specs.LinuxCapabilities{
		Bounding: append([]string(nil), b.Capabilities...),
	}
}

// Validate checks a binary entry's required fields and, if capabilities
// are declared, that they parse as well-formed specs-go capability names
// (CAP_-prefixed, uppercase).
func (b BinaryEntry) Validate() error {
	if b.Name == "" {
		return &InvalidManifestError{Reason: "binary entry missing name"}
	}
	if b.Path == "" {
		return &InvalidManifestError{Reason: "binary entry " + b.Name + " missing path"}
	}
	if caps := b.toLinuxCapabilities(); caps != nil {
		for _, c := range caps.Bounding {
			if !strings.HasPrefix(c, "CAP_") || c != strings.ToUpper(c) {
				return &InvalidManifestError{Reason: "binary " + b.Name + " has malformed capability " + c}
			}
		}
	}
	return nil
}

// PackageManifest is the parsed form of a package's package.toml.
type PackageManifest struct {
	Name        string       `toml:"name"`
	Version     Version      `toml:"-"`
	VersionRaw  string       `toml:"version"`
	Description string       `toml:"description,omitempty"`
	Authors     []string     `toml:"authors,omitempty"`
	License     string       `toml:"license,omitempty"`
	Repository  string       `toml:"repository,omitempty"`
	Homepage    string       `toml:"homepage,omitempty"`
	Keywords    []string     `toml:"keywords,omitempty"`

	Binaries        []BinaryEntry `toml:"bin"`
	Dependencies    []Dependency  `toml:"dependencies,omitempty"`
	DevDependencies []Dependency  `toml:"dev_dependencies,omitempty"`
}

// manifestDoc is the raw TOML shape: package.toml nests package metadata
// under a [package] table and dependencies under flat [dependencies]/
// [dev_dependencies] maps keyed by name, the same layout mod.rs's doc
// comment documents.
type manifestDoc struct {
	Package struct {
		Name        string   `toml:"name"`
		Version     string   `toml:"version"`
		Description string   `toml:"description"`
		Authors     []string `toml:"authors"`
		License     string   `toml:"license"`
		Repository  string   `toml:"repository"`
		Homepage    string   `toml:"homepage"`
		Keywords    []string `toml:"keywords"`
	} `toml:"package"`
	Bin             []BinaryEntry     `toml:"bin"`
	Dependencies    map[string]string `toml:"dependencies"`
	DevDependencies map[string]string `toml:"dev_dependencies"`
}

// ParseManifest decodes a package.toml document.
func ParseManifest(data []byte) (PackageManifest, error) {
	var doc manifestDoc
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return PackageManifest{}, &InvalidManifestError{Reason: err.Error()}
	}
	if doc.Package.Name == "" {
		return PackageManifest{}, &InvalidManifestError{Reason: "missing [package] name"}
	}
	v, err := ParseVersion(doc.Package.Version)
	if err != nil {
		return PackageManifest{}, &InvalidManifestError{Reason: "bad package version: " + err.Error()}
	}

	m := PackageManifest{
		Name:        doc.Package.Name,
		Version:     v,
		VersionRaw:  doc.Package.Version,
		Description: doc.Package.Description,
		Authors:     doc.Package.Authors,
		License:     doc.Package.License,
		Repository:  doc.Package.Repository,
		Homepage:    doc.Package.Homepage,
		Keywords:    doc.Package.Keywords,
		Binaries:    doc.Bin,
	}
	for _, b := range m.Binaries {
		if err := b.Validate(); err != nil {
			return PackageManifest{}, err
		}
	}
	m.Dependencies = depsFromMap(doc.Dependencies)
	m.DevDependencies = depsFromMap(doc.DevDependencies)
	return m, nil
}

func depsFromMap(raw map[string]string) []Dependency {
	if len(raw) == 0 {
		return nil
	}
	deps := make([]Dependency, 0, len(raw))
	for name, req := range raw {
		deps = append(deps, Dependency{Name: name, VersionReq: req})
	}
	return deps
}

// Encode serializes the manifest back to package.toml form.
func (m PackageManifest) Encode() ([]byte, error) {
	doc := manifestDoc{
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{},
	}
	doc.Package.Name = m.Name
	doc.Package.Version = m.Version.String()
	doc.Package.Description = m.Description
	doc.Package.Authors = m.Authors
	doc.Package.License = m.License
	doc.Package.Repository = m.Repository
	doc.Package.Homepage = m.Homepage
	doc.Package.Keywords = m.Keywords
	doc.Bin = m.Binaries
	for _, d := range m.Dependencies {
		doc.Dependencies[d.Name] = d.VersionReq
	}
	for _, d := range m.DevDependencies {
		doc.DevDependencies[d.Name] = d.VersionReq
	}

	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
