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

import (
	"fmt"
	"strings"
)

var sysDirs = map[string][]string{
	"/sys":                           {"block", "bus", "class", "devices", "firmware", "fs", "kernel", "module", "power"},
	"/sys/kernel":                    {"hostname", "ostype", "osrelease", "version"},
	"/sys/class":                     {"tty", "mem"},
	"/sys/class/tty":                 {"console", "tty0"},
	"/sys/class/mem":                 {"null", "zero", "random", "urandom"},
	"/sys/devices":                   {"system", "virtual"},
	"/sys/devices/system":            {"cpu", "memory"},
	"/sys/devices/system/cpu":        {"cpu0", "online", "present"},
	"/sys/devices/system/cpu/cpu0":   {"cpufreq"},
	"/sys/fs":                        {"cgroup"},
	"/sys/power":                     {"state"},
	"/sys/block":                     {},
	"/sys/bus":                       {},
	"/sys/firmware":                  {},
	"/sys/module":                    {},
}

var sysFiles = map[string]string{
	"/sys/kernel/hostname":              "axeberg",
	"/sys/kernel/ostype":                "AxebergOS",
	"/sys/kernel/osrelease":             "0.1.0",
	"/sys/kernel/version":               "#1 WASM",
	"/sys/devices/system/cpu/online":    "0",
	"/sys/devices/system/cpu/present":   "0",
	"/sys/power/state":                  "mem disk standby freeze\n",
}

// SysFS synthesizes the fixed /sys hierarchy: kernel object attributes
// simulated since there is no real underlying hardware.
type SysFS struct{}

// NewSysFS creates a content generator for /sys.
func NewSysFS() *SysFS { return &SysFS{} }

// IsSysPath reports whether p falls under /sys.
func IsSysPath(p string) bool {
	return p == "/sys" || strings.HasPrefix(p, "/sys/")
}

// ListDir returns p's entries, or nil if p is not a known /sys directory.
func (f *SysFS) ListDir(p string) []string {
	entries, ok := sysDirs[p]
	if !ok {
		return nil
	}
	return append([]string(nil), entries...)
}

// IsDir reports whether p is a known /sys directory.
func (f *SysFS) IsDir(p string) bool {
	_, ok := sysDirs[p]
	return ok
}

// Exists reports whether p is a known /sys directory or file.
func (f *SysFS) Exists(p string) bool {
	if f.IsDir(p) {
		return true
	}
	return f.Generate(p) != nil
}

// Generate produces the byte content of a /sys file, or nil if p is not
// a known leaf.
func (f *SysFS) Generate(p string) []byte {
	content, ok := sysFiles[p]
	if !ok {
		return nil
	}
	if strings.HasSuffix(content, "\n") {
		return []byte(content)
	}
	return []byte(fmt.Sprintf("%s\n", content))
}
