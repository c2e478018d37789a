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

import "strings"

// DeviceType classifies a /dev entry.
type DeviceType int

const (
	CharDevice DeviceType = iota
	BlockDevice
	SymlinkDevice
)

// DeviceInfo is the (type, major, minor, mode) tuple a /dev entry carries.
type DeviceInfo struct {
	Type  DeviceType
	Major uint32
	Minor uint32
	Mode  uint16
}

var devices = map[string]DeviceInfo{
	"console": {CharDevice, 5, 1, 0o620},
	"null":    {CharDevice, 1, 3, 0o666},
	"zero":    {CharDevice, 1, 5, 0o666},
	"random":  {CharDevice, 1, 8, 0o666},
	"urandom": {CharDevice, 1, 9, 0o666},
	"tty":     {CharDevice, 5, 0, 0o666},
	"ptmx":    {CharDevice, 5, 2, 0o666},
	"stdin":   {SymlinkDevice, 0, 0, 0o777},
	"stdout":  {SymlinkDevice, 0, 0, 0o777},
	"stderr":  {SymlinkDevice, 0, 0, 0o777},
}

// DevFS is a fixed set of simulated device names. /dev/fd is a special
// directory that stands in for the calling process's open file descriptors.
type DevFS struct{}

// NewDevFS creates the standard device set.
func NewDevFS() *DevFS { return &DevFS{} }

// IsDevPath reports whether p falls under /dev.
func IsDevPath(p string) bool {
	return p == "/dev" || strings.HasPrefix(p, "/dev/")
}

// ListDir lists /dev's entries, or the fixed fd placeholder list for
// /dev/fd; nil otherwise.
func (f *DevFS) ListDir(p string) []string {
	switch p {
	case "/dev":
		names := make([]string, 0, len(devices)+1)
		for name := range devices {
			names = append(names, name)
		}
		names = append(names, "fd")
		return names
	case "/dev/fd":
		return []string{"0", "1", "2"}
	default:
		return nil
	}
}

// Exists reports whether p names a device or the fd pseudo-directory.
func (f *DevFS) Exists(p string) bool {
	if p == "/dev" {
		return true
	}
	name, ok := strings.CutPrefix(p, "/dev/")
	if !ok {
		return false
	}
	if strings.HasPrefix(name, "fd/") || name == "fd" {
		return true
	}
	_, known := devices[name]
	return known
}

// IsDir reports whether p is /dev itself or the fd pseudo-directory.
func (f *DevFS) IsDir(p string) bool {
	return p == "/dev" || p == "/dev/fd"
}

// Info returns the (type, major, minor, mode) tuple for a device name, or
// false if name isn't a known device.
func (f *DevFS) Info(name string) (DeviceInfo, bool) {
	info, ok := devices[name]
	return info, ok
}
