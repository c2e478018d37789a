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

// fakeFetcher answers FetchPackage with a canned TOML body per name, used
// only to exercise PackageRegistry's decode path from a test.
type fakeFetcher struct{ bodies map[string]string }

func (f fakeFetcher) FetchPackage(name string) ([]byte, error) {
	body, ok := f.bodies[name]
	if !ok {
		return nil, &PackageNotFoundError{Name: name}
	}
	return []byte(body), nil
}
func (f fakeFetcher) FetchIndex() ([]byte, error) { return nil, nil }

// fakeManifests maps name-version to a manifest directly, modeling the
// resolver's ManifestSource without touching a real archive.
type fakeManifests struct {
	manifests map[string]PackageManifest
}

func (f fakeManifests) FetchManifest(name string, version Version) (PackageManifest, error) {
	key := name + "-" + version.String()
	m, ok := f.manifests[key]
	if !ok {
		return PackageManifest{}, &PackageNotFoundError{Name: name}
	}
	return m, nil
}

func entryTOML(versions ...string) string {
	s := "name = \"x\"\nversions = ["
	for i, v := range versions {
		if i > 0 {
			s += ", "
		}
		s += "\"" + v + "\""
	}
	s += "]\n"
	return s
}

func manifestWithDeps(name, version string, deps ...Dependency) PackageManifest {
	return PackageManifest{Name: name, Version: mustVersionForTest(version), Dependencies: deps}
}

func mustVersionForTest(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestResolverOrdersDependenciesBeforeDependents(t *testing.T) {
	fetcher := fakeFetcher{bodies: map[string]string{
		"base":   entryTOML("1.0.0"),
		"middle": entryTOML("1.0.0"),
		"top":    entryTOML("1.0.0"),
	}}
	registry := NewPackageRegistry(fetcher)

	manifests := fakeManifests{manifests: map[string]PackageManifest{
		"top-1.0.0":    manifestWithDeps("top", "1.0.0", Dependency{Name: "middle", VersionReq: "^1.0.0"}),
		"middle-1.0.0": manifestWithDeps("middle", "1.0.0", Dependency{Name: "base", VersionReq: "^1.0.0"}),
		"base-1.0.0":   manifestWithDeps("base", "1.0.0"),
	}}

	resolver := NewDependencyResolver()
	order, err := resolver.Resolve(NewPackageID("top", New(1, 0, 0)), registry, manifests)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, p := range order {
		pos[p.ID.Name] = i
	}
	if pos["base"] >= pos["middle"] || pos["middle"] >= pos["top"] {
		t.Fatalf("install order %v violates dependency ordering", order)
	}
}

func TestResolverDetectsCircularDependency(t *testing.T) {
	fetcher := fakeFetcher{bodies: map[string]string{
		"a": entryTOML("1.0.0"),
		"b": entryTOML("1.0.0"),
	}}
	registry := NewPackageRegistry(fetcher)

	manifests := fakeManifests{manifests: map[string]PackageManifest{
		"a-1.0.0": manifestWithDeps("a", "1.0.0", Dependency{Name: "b", VersionReq: "^1.0.0"}),
		"b-1.0.0": manifestWithDeps("b", "1.0.0", Dependency{Name: "a", VersionReq: "^1.0.0"}),
	}}

	resolver := NewDependencyResolver()
	if _, err := resolver.Resolve(NewPackageID("a", New(1, 0, 0)), registry, manifests); err == nil {
		t.Fatalf("circular dependency should fail resolution")
	}
}

func TestResolverDetectsConflictingRequirements(t *testing.T) {
	resolver := NewDependencyResolver()
	if err := resolver.addConstraint("dep", mustReq(t, "^1.0.0"), mustVersionForTest("1.0.0")); err != nil {
		t.Fatalf("first constraint should record cleanly: %v", err)
	}
	// A second, inconsistent requirement for the same name conflicts with
	// the version already chosen to satisfy the first.
	if err := resolver.addConstraint("dep", mustReq(t, "^2.0.0"), mustVersionForTest("1.0.0")); err == nil {
		t.Fatalf("a requirement inconsistent with the chosen version should fail")
	}
}

func mustReq(t *testing.T, s string) VersionReq {
	t.Helper()
	r, err := ParseVersionReq(s)
	if err != nil {
		t.Fatalf("ParseVersionReq(%q): %v", s, err)
	}
	return r
}

func TestResolverCheckConstraints(t *testing.T) {
	resolver := NewDependencyResolver()
	resolver.constraints["test"] = []VersionReq{mustReq(t, "^1.0.0")}

	if !resolver.CheckConstraints("test", New(1, 0, 0)) {
		t.Fatalf("1.0.0 should satisfy ^1.0.0")
	}
	if !resolver.CheckConstraints("test", New(1, 5, 0)) {
		t.Fatalf("1.5.0 should satisfy ^1.0.0")
	}
	if resolver.CheckConstraints("test", New(2, 0, 0)) {
		t.Fatalf("2.0.0 should not satisfy ^1.0.0")
	}
}

func TestResolverResetClearsState(t *testing.T) {
	resolver := NewDependencyResolver()
	resolver.constraints["test"] = []VersionReq{mustReq(t, "^1.0.0")}
	resolver.Reset()
	if len(resolver.constraints) != 0 {
		t.Fatalf("Reset should clear constraints")
	}
}
