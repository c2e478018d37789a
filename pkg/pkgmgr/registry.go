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
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cenkalti/backoff"
)

// RegistryEntry is the metadata a registry reports for one package name:
// every published version plus search-facing metadata.
type RegistryEntry struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	Keywords    []string  `toml:"keywords"`
	Versions    []Version `toml:"-"`
	VersionsRaw []string  `toml:"versions"`
}

// BestVersion returns the highest version satisfying req, or false if
// none matches.
func (e RegistryEntry) BestVersion(req VersionReq) (Version, bool) {
	var best Version
	found := false
	for _, v := range e.Versions {
		if !req.Matches(v) {
			continue
		}
		if !found || best.LessThan(v) {
			best = v
			found = true
		}
	}
	return best, found
}

// Fetcher is the host-side collaborator a PackageRegistry calls out to:
// a single blocking round trip per package name or index refresh. The
// kernel's single-threaded executor never calls Fetcher directly — it is
// invoked from the host-I/O suspension point spec.md §5 carves out for
// package fetch, with the goroutine-level retry below bounding how long
// that suspension can run before giving up.
type Fetcher interface {
	FetchPackage(name string) ([]byte, error)
	FetchIndex() ([]byte, error)
}

// PackageRegistry resolves package names to metadata via a Fetcher,
// retrying transient failures with exponential backoff, and caches the
// last-fetched index.
type PackageRegistry struct {
	fetch   Fetcher
	newBack func() backoff.BackOff
	index   map[string]RegistryEntry
}

// NewPackageRegistry constructs a registry client around fetch, using
// backoff's exponential policy for retries, bounded so a persistently
// unreachable registry fails the call instead of retrying forever.
func NewPackageRegistry(fetch Fetcher) *PackageRegistry {
	return &PackageRegistry{
		fetch: fetch,
		newBack: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
		index: make(map[string]RegistryEntry),
	}
}

// indexDoc is the on-disk/on-wire shape of the registry index cache.
type indexDoc struct {
	Packages map[string]RegistryEntry `toml:"packages"`
}

// FetchPackage retrieves metadata for name, retrying transient Fetcher
// errors, and decodes the TOML entry the registry returns.
func (r *PackageRegistry) FetchPackage(name string) (RegistryEntry, error) {
	if e, ok := r.index[name]; ok {
		return e, nil
	}

	var raw []byte
	op := func() error {
		data, err := r.fetch.FetchPackage(name)
		if err != nil {
			return err
		}
		raw = data
		return nil
	}
	if err := backoff.Retry(op, r.newBack()); err != nil {
		return RegistryEntry{}, &PackageNotFoundError{Name: name}
	}

	var entry RegistryEntry
	if _, err := toml.Decode(string(raw), &entry); err != nil {
		return RegistryEntry{}, &InvalidManifestError{Reason: err.Error()}
	}
	entry.Name = name
	entry.Versions = make([]Version, 0, len(entry.VersionsRaw))
	for _, vs := range entry.VersionsRaw {
		v, err := ParseVersion(vs)
		if err != nil {
			continue
		}
		entry.Versions = append(entry.Versions, v)
	}
	r.index[name] = entry
	return entry, nil
}

// UpdateIndex refreshes the whole registry index cache from the Fetcher.
func (r *PackageRegistry) UpdateIndex() error {
	var raw []byte
	op := func() error {
		data, err := r.fetch.FetchIndex()
		if err != nil {
			return err
		}
		raw = data
		return nil
	}
	if err := backoff.Retry(op, r.newBack()); err != nil {
		return err
	}

	var doc indexDoc
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return &InvalidManifestError{Reason: err.Error()}
	}
	for name, entry := range doc.Packages {
		entry.Name = name
		entry.Versions = make([]Version, 0, len(entry.VersionsRaw))
		for _, vs := range entry.VersionsRaw {
			v, err := ParseVersion(vs)
			if err != nil {
				continue
			}
			entry.Versions = append(entry.Versions, v)
		}
		r.index[name] = entry
	}
	return nil
}

// Search returns every cached entry whose name or keywords contain query.
func (r *PackageRegistry) Search(query string) []RegistryEntry {
	var results []RegistryEntry
	for _, entry := range r.index {
		if containsFold(entry.Name, query) {
			results = append(results, entry)
			continue
		}
		for _, kw := range entry.Keywords {
			if containsFold(kw, query) {
				results = append(results, entry)
				break
			}
		}
	}
	return results
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
