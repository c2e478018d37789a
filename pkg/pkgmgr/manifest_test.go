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

const sampleManifest = `
[package]
name = "hello"
version = "1.0.0"
description = "A hello world command"
authors = ["axeberg"]
license = "MIT"

[[bin]]
name = "hello"
path = "bin/hello.wasm"

[dependencies]
utils = "^1.0"
`

func TestParseManifestBasics(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != "hello" || !m.Version.Equal(New(1, 0, 0)) {
		t.Fatalf("got %+v", m)
	}
	if len(m.Binaries) != 1 || m.Binaries[0].Path != "bin/hello.wasm" {
		t.Fatalf("binaries = %+v", m.Binaries)
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0].Name != "utils" || m.Dependencies[0].VersionReq != "^1.0" {
		t.Fatalf("dependencies = %+v", m.Dependencies)
	}
}

func TestParseManifestMissingName(t *testing.T) {
	bad := `
[package]
version = "1.0.0"
`
	if _, err := ParseManifest([]byte(bad)); err == nil {
		t.Fatalf("manifest with no name should fail")
	}
}

func TestParseManifestBadVersion(t *testing.T) {
	bad := `
[package]
name = "hello"
version = "not-a-version"
`
	if _, err := ParseManifest([]byte(bad)); err == nil {
		t.Fatalf("manifest with unparsable version should fail")
	}
}

func TestBinaryEntryValidateRequiresPath(t *testing.T) {
	b := BinaryEntry{Name: "hello"}
	if err := b.Validate(); err == nil {
		t.Fatalf("binary with no path should fail validation")
	}
}

func TestBinaryEntryValidateCapabilities(t *testing.T) {
	ok := BinaryEntry{Name: "hello", Path: "bin/hello.wasm", Capabilities: []string{"CAP_NET_BIND"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("well-formed capability should validate: %v", err)
	}
	bad := BinaryEntry{Name: "hello", Path: "bin/hello.wasm", Capabilities: []string{"net_bind"}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("lowercase capability should fail validation")
	}
}

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := ParseManifest(encoded)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if decoded.Name != m.Name || !decoded.Version.Equal(m.Version) {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, m)
	}
}
