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
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic version: MAJOR.MINOR.PATCH with an optional
// -PRERELEASE and +BUILD suffix. Build metadata is carried for display
// only; it never participates in ordering or equality.
type Version struct {
	Major, Minor, Patch uint64
	Pre                 string
	Build               string
}

// New builds a release version with no prerelease or build metadata.
func New(major, minor, patch uint64) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses a "MAJOR.MINOR.PATCH[-PRE][+BUILD]" string.
func ParseVersion(s string) (Version, error) {
	raw := s
	var v Version

	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, &InvalidVersionError{Raw: raw}
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, &InvalidVersionError{Raw: raw}
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// InvalidVersionError reports a malformed version string.
type InvalidVersionError struct{ Raw string }

func (e *InvalidVersionError) Error() string { return fmt.Sprintf("invalid version: %s", e.Raw) }

// String renders the version back to its canonical text form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0, or 1 as v orders before, equal to, or after other.
// Build metadata never participates.
func (v Version) Compare(other Version) int {
	if c := compareUint(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareUint(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareUint(v.Patch, other.Patch); c != 0 {
		return c
	}
	return comparePre(v.Pre, other.Pre)
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePre orders prerelease strings per semver 2.0 §11: a version with
// no prerelease is greater than one with a prerelease and the same core;
// among two prereleases, dot-separated identifiers compare left to right,
// numeric identifiers compare numerically and sort below alphanumeric
// ones, and a prerelease with fewer identifiers sorts below one that
// extends it with more.
func comparePre(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	aIDs := strings.Split(a, ".")
	bIDs := strings.Split(b, ".")
	for i := 0; i < len(aIDs) && i < len(bIDs); i++ {
		if c := compareIdentifier(aIDs[i], bIDs[i]); c != 0 {
			return c
		}
	}
	return compareUint(uint64(len(aIDs)), uint64(len(bIDs)))
}

func compareIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	aNumeric := aErr == nil
	bNumeric := bErr == nil

	switch {
	case aNumeric && bNumeric:
		return compareUint(an, bn)
	case aNumeric && !bNumeric:
		return -1
	case !aNumeric && bNumeric:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// LessThan reports whether v orders before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other are the same version, ignoring build
// metadata.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// reqKind is the comparison operator a VersionReq applies.
type reqKind int

const (
	reqAny reqKind = iota
	reqExact
	reqGTE
	reqCaret
	reqTilde
)

// VersionReq is a single version constraint, e.g. "^1.2.3" or "*".
type VersionReq struct {
	kind reqKind
	base Version
	raw  string
}

// AnyVersionReq matches every version.
func AnyVersionReq() VersionReq { return VersionReq{kind: reqAny, raw: "*"} }

// ParseVersionReq parses a requirement string: "=X.Y.Z", ">=X.Y.Z",
// "^X.Y.Z", "~X.Y.Z", or "*".
func ParseVersionReq(s string) (VersionReq, error) {
	raw := strings.TrimSpace(s)
	switch {
	case raw == "*" || raw == "":
		return AnyVersionReq(), nil
	case strings.HasPrefix(raw, ">="):
		v, err := ParseVersion(raw[2:])
		if err != nil {
			return VersionReq{}, &InvalidVersionReqError{Raw: raw}
		}
		return VersionReq{kind: reqGTE, base: v, raw: raw}, nil
	case strings.HasPrefix(raw, "^"):
		v, err := ParseVersion(raw[1:])
		if err != nil {
			return VersionReq{}, &InvalidVersionReqError{Raw: raw}
		}
		return VersionReq{kind: reqCaret, base: v, raw: raw}, nil
	case strings.HasPrefix(raw, "~"):
		v, err := ParseVersion(raw[1:])
		if err != nil {
			return VersionReq{}, &InvalidVersionReqError{Raw: raw}
		}
		return VersionReq{kind: reqTilde, base: v, raw: raw}, nil
	case strings.HasPrefix(raw, "="):
		v, err := ParseVersion(raw[1:])
		if err != nil {
			return VersionReq{}, &InvalidVersionReqError{Raw: raw}
		}
		return VersionReq{kind: reqExact, base: v, raw: raw}, nil
	default:
		v, err := ParseVersion(raw)
		if err != nil {
			return VersionReq{}, &InvalidVersionReqError{Raw: raw}
		}
		return VersionReq{kind: reqExact, base: v, raw: raw}, nil
	}
}

// InvalidVersionReqError reports a malformed requirement string.
type InvalidVersionReqError struct{ Raw string }

func (e *InvalidVersionReqError) Error() string {
	return fmt.Sprintf("invalid version requirement: %s", e.Raw)
}

// Matches reports whether v satisfies the requirement.
func (r VersionReq) Matches(v Version) bool {
	switch r.kind {
	case reqAny:
		return true
	case reqExact:
		return v.Equal(r.base)
	case reqGTE:
		return !v.LessThan(r.base)
	case reqCaret:
		return r.matchesCaret(v)
	case reqTilde:
		return r.matchesTilde(v)
	default:
		return false
	}
}

func (r VersionReq) matchesCaret(v Version) bool {
	if v.LessThan(r.base) {
		return false
	}
	switch {
	case r.base.Major > 0:
		return v.Major == r.base.Major
	case r.base.Minor > 0:
		return v.Major == 0 && v.Minor == r.base.Minor
	default:
		return v.Major == 0 && v.Minor == 0 && v.Patch == r.base.Patch
	}
}

func (r VersionReq) matchesTilde(v Version) bool {
	if v.LessThan(r.base) {
		return false
	}
	return v.Major == r.base.Major && v.Minor == r.base.Minor
}

// String renders the requirement back to its canonical text form.
func (r VersionReq) String() string { return r.raw }
