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

package vfs

import "testing"

func TestDevNullInfo(t *testing.T) {
	f := NewDevFS()
	info, ok := f.Info("null")
	if !ok {
		t.Fatalf("null device should be known")
	}
	if info.Type != CharDevice || info.Major != 1 || info.Minor != 3 || info.Mode != 0o666 {
		t.Fatalf("null device info = %+v, want {Char 1 3 0666}", info)
	}
}

func TestDevFdIsDirectory(t *testing.T) {
	f := NewDevFS()
	if !f.IsDir("/dev/fd") {
		t.Fatalf("/dev/fd should be a directory")
	}
	entries := f.ListDir("/dev/fd")
	want := []string{"0", "1", "2"}
	for i, w := range want {
		if entries[i] != w {
			t.Fatalf("/dev/fd listing = %v, want %v", entries, want)
		}
	}
}

func TestDevNestedFdPathExists(t *testing.T) {
	f := NewDevFS()
	if !f.Exists("/dev/fd/3") {
		t.Fatalf("/dev/fd/3 should exist")
	}
}

func TestDevUnknownDeviceAbsent(t *testing.T) {
	f := NewDevFS()
	if f.Exists("/dev/nope") {
		t.Fatalf("/dev/nope should not exist")
	}
	if _, ok := f.Info("nope"); ok {
		t.Fatalf("nope should not be a known device")
	}
}

func TestDevStdoutIsSymlinkType(t *testing.T) {
	f := NewDevFS()
	info, ok := f.Info("stdout")
	if !ok || info.Type != SymlinkDevice {
		t.Fatalf("stdout info = %+v, %v; want SymlinkDevice", info, ok)
	}
}
