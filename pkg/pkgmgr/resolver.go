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
	"sort"

	"github.com/hashicorp/go-multierror"
)

// ResolvedPackage is one package ready for installation, in dependency
// order.
type ResolvedPackage struct {
	ID           PackageID
	Manifest     PackageManifest
	Dependencies []string
	Order        int
}

// ManifestSource fetches a package's manifest given a name and the
// version the resolver has already picked for it, e.g. from a registry's
// per-version archive metadata.
type ManifestSource interface {
	FetchManifest(name string, version Version) (PackageManifest, error)
}

// DependencyResolver walks a root package's dependency graph, picking the
// highest version satisfying each requirement, detecting cycles and
// inconsistent version constraints, and producing a topologically sorted
// install order.
type DependencyResolver struct {
	resolved    map[string]ResolvedPackage
	constraints map[string][]VersionReq
	resolving   map[string]bool
	path        []string
}

// NewDependencyResolver constructs an empty resolver.
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{
		resolved:    make(map[string]ResolvedPackage),
		constraints: make(map[string][]VersionReq),
		resolving:   make(map[string]bool),
	}
}

// Reset clears all resolver state so it can be reused for a new root.
func (r *DependencyResolver) Reset() {
	r.resolved = make(map[string]ResolvedPackage)
	r.constraints = make(map[string][]VersionReq)
	r.resolving = make(map[string]bool)
	r.path = nil
}

// Resolve walks root's dependency graph via registry and manifests,
// returning the install order: every dependency before its dependents,
// with root appended last.
func (r *DependencyResolver) Resolve(root PackageID, registry *PackageRegistry, manifests ManifestSource) ([]ResolvedPackage, error) {
	r.Reset()

	rootManifest, err := manifests.FetchManifest(root.Name, root.Version)
	if err != nil {
		return nil, err
	}

	if err := r.resolveRecursive(root.Name, root.Version, rootManifest, registry, manifests); err != nil {
		return nil, err
	}

	order, err := r.topologicalSort()
	if err != nil {
		return nil, err
	}
	for _, p := range order {
		if p.ID.Name == root.Name {
			return order, nil
		}
	}
	order = append(order, r.resolved[root.Name])
	return order, nil
}

func (r *DependencyResolver) resolveRecursive(name string, version Version, manifest PackageManifest, registry *PackageRegistry, manifests ManifestSource) error {
	if r.resolving[name] {
		cycle := append(append([]string(nil), r.path...), name)
		return &CircularDependencyError{Chain: cycle}
	}
	if _, ok := r.resolved[name]; ok {
		return nil
	}

	r.resolving[name] = true
	r.path = append(r.path, name)
	defer func() {
		delete(r.resolving, name)
		r.path = r.path[:len(r.path)-1]
	}()

	depNames := make([]string, 0, len(manifest.Dependencies))
	for _, dep := range manifest.Dependencies {
		if dep.Optional {
			continue
		}

		req, err := ParseVersionReq(dep.VersionReq)
		if err != nil {
			return err
		}
		entry, err := registry.FetchPackage(dep.Name)
		if err != nil {
			return err
		}
		best, ok := entry.BestVersion(req)
		if !ok {
			return &NoMatchingVersionError{Name: dep.Name, Requirement: req.String()}
		}

		if err := r.addConstraint(dep.Name, req, best); err != nil {
			return err
		}

		depManifest, err := manifests.FetchManifest(dep.Name, best)
		if err != nil {
			return err
		}
		if err := r.resolveRecursive(dep.Name, best, depManifest, registry, manifests); err != nil {
			return err
		}
		depNames = append(depNames, dep.Name)
	}

	if _, ok := r.resolved[name]; !ok {
		r.resolved[name] = ResolvedPackage{
			ID:           PackageID{Name: name, Version: version},
			Manifest:     manifest,
			Dependencies: depNames,
			Order:        len(r.resolved),
		}
	}
	return nil
}

// addConstraint records req for name and fails with DependencyConflictError
// if a prior requirement for the same name cannot also be satisfied by the
// version just chosen, or if req itself does not accept that version.
func (r *DependencyResolver) addConstraint(name string, req VersionReq, chosen Version) error {
	for _, existing := range r.constraints[name] {
		if !existing.Matches(chosen) || !req.Matches(chosen) {
			return &DependencyConflictError{
				Package:      name,
				Requirement1: existing.String(),
				Requirement2: req.String(),
			}
		}
	}
	r.constraints[name] = append(r.constraints[name], req)
	return nil
}

// CheckConstraints reports whether every recorded requirement for name
// accepts version.
func (r *DependencyResolver) CheckConstraints(name string, version Version) bool {
	for _, req := range r.constraints[name] {
		if !req.Matches(version) {
			return false
		}
	}
	return true
}

// GetResolved returns every package resolved so far.
func (r *DependencyResolver) GetResolved() []ResolvedPackage {
	out := make([]ResolvedPackage, 0, len(r.resolved))
	for _, p := range r.resolved {
		out = append(out, p)
	}
	return out
}

// topologicalSort orders resolved packages so every dependency precedes
// its dependents, via Kahn's algorithm; ties break by name for a
// deterministic install order.
func (r *DependencyResolver) topologicalSort() ([]ResolvedPackage, error) {
	indegree := make(map[string]int, len(r.resolved))
	adj := make(map[string][]string, len(r.resolved))
	for name := range r.resolved {
		indegree[name] = 0
	}
	for name, pkg := range r.resolved {
		for _, dep := range pkg.Dependencies {
			if _, ok := r.resolved[dep]; !ok {
				continue
			}
			adj[dep] = append(adj[dep], name)
			indegree[name]++
		}
	}

	var queue []string
	for name := range indegree {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []ResolvedPackage
	var errs *multierror.Error
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		order = append(order, r.resolved[next])

		var ready []string
		for _, dependent := range adj[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(order) != len(r.resolved) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		errs = multierror.Append(errs, &CircularDependencyError{Chain: stuck})
		return nil, errs.ErrorOrNil()
	}
	return order, nil
}
