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
	"strconv"
	"strings"
)

// ProcContext supplies the per-process facts needed to generate any
// /proc/<pid>/* file.
type ProcContext struct {
	PID         uint32
	PPID        uint32
	HasPPID     bool
	Name        string
	State       string
	UID, GID    uint32
	Cwd         string
	Cmdline     string
	Environ     [][2]string
	MemoryUsed  uint64
	MemoryLimit uint64
}

// SystemContext supplies the system-wide facts needed to generate the
// files directly under /proc.
type SystemContext struct {
	UptimeSecs   float64
	TotalMemory  uint64
	UsedMemory   uint64
	FreeMemory   uint64
	NumProcesses int
}

var procRootSpecialFiles = []string{
	"uptime", "meminfo", "cpuinfo", "version", "loadavg", "stat", "mounts",
}

var procPidFiles = []string{
	"cmdline", "cwd", "environ", "exe", "fd", "status", "stat", "maps",
}

func isValidProcPidFile(subpath string) bool {
	for _, f := range procPidFiles {
		if subpath == f {
			return true
		}
	}
	return strings.HasPrefix(subpath, "fd/")
}

// ProcFS synthesizes the content of /proc on every read; nothing about it
// is stored between calls.
type ProcFS struct{}

// NewProcFS creates a content generator for /proc.
func NewProcFS() *ProcFS { return &ProcFS{} }

// IsProcPath reports whether p falls under /proc.
func IsProcPath(p string) bool {
	return p == "/proc" || strings.HasPrefix(p, "/proc/")
}

// ListDir lists p's entries, or nil if p is not a /proc directory.
func (f *ProcFS) ListDir(p string, callerPID uint32, pids []uint32) []string {
	if p == "/proc" {
		entries := make([]string, 0, len(pids)+len(procRootSpecialFiles)+1)
		for _, pid := range pids {
			entries = append(entries, strconv.FormatUint(uint64(pid), 10))
		}
		entries = append(entries, "self")
		entries = append(entries, procRootSpecialFiles...)
		return entries
	}

	rest := strings.TrimPrefix(p, "/proc/")
	if rest == p {
		return nil
	}

	if _, ok := resolvePidDir(rest, callerPID, pids); ok {
		return append([]string(nil), procPidFiles...)
	}
	if fdPid, ok := strings.CutSuffix(rest, "/fd"); ok {
		if n, err := strconv.ParseUint(fdPid, 10, 32); err == nil {
			if pidExists(uint32(n), pids) {
				return []string{"0", "1", "2"}
			}
		}
		if fdPid == "self" {
			return []string{"0", "1", "2"}
		}
	}
	return nil
}

// resolvePidDir reports whether rest is exactly a PID directory name
// ("self" or a numeric PID present in pids), returning the resolved PID.
func resolvePidDir(rest string, callerPID uint32, pids []uint32) (uint32, bool) {
	if rest == "self" {
		return callerPID, true
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	if !pidExists(uint32(n), pids) {
		return 0, false
	}
	return uint32(n), true
}

func pidExists(pid uint32, pids []uint32) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}

// Exists reports whether p resolves to anything under /proc.
func (f *ProcFS) Exists(p string, callerPID uint32, pids []uint32, procInfo func(uint32) (ProcContext, bool), sysInfo func() SystemContext) bool {
	if p == "/proc" {
		return true
	}
	rest := strings.TrimPrefix(p, "/proc/")
	if rest == p {
		return false
	}
	for _, special := range procRootSpecialFiles {
		if rest == special {
			return true
		}
	}
	if rest == "self" {
		return true
	}

	parts := strings.Split(rest, "/")
	if len(parts) == 0 {
		return false
	}

	pid, ok := resolvePidDir(parts[0], callerPID, pids)
	if !ok {
		return false
	}
	if len(parts) == 1 {
		return true
	}
	subpath := strings.Join(parts[1:], "/")
	if !isValidProcPidFile(subpath) {
		return false
	}
	_, found := procInfo(pid)
	return found
}

// IsDir reports whether p is a directory under /proc.
func (f *ProcFS) IsDir(p string, callerPID uint32, pids []uint32) bool {
	if p == "/proc" {
		return true
	}
	rest := strings.TrimPrefix(p, "/proc/")
	if rest == p {
		return false
	}
	parts := strings.Split(rest, "/")
	if len(parts) == 0 {
		return false
	}
	if _, ok := resolvePidDir(parts[0], callerPID, pids); !ok {
		return false
	}
	if len(parts) == 1 {
		return true
	}
	return len(parts) == 2 && parts[1] == "fd"
}

// Generate produces the byte content of a /proc file, or nil if p names a
// directory, a symlink-only entry, or doesn't exist.
func (f *ProcFS) Generate(p string, callerPID uint32, procInfo func(uint32) (ProcContext, bool), sysInfo func() SystemContext) []byte {
	rest := strings.TrimPrefix(p, "/proc/")
	if rest == p {
		return nil
	}

	sys := sysInfo()
	switch rest {
	case "uptime":
		return []byte(fmt.Sprintf("%.2f %.2f\n", sys.UptimeSecs, sys.UptimeSecs*0.9))
	case "meminfo":
		return []byte(fmt.Sprintf(
			"MemTotal:       %d kB\nMemFree:        %d kB\nMemAvailable:   %d kB\nBuffers:        0 kB\nCached:         0 kB\n",
			sys.TotalMemory/1024, sys.FreeMemory/1024, sys.FreeMemory/1024))
	case "cpuinfo":
		return []byte("processor\t: 0\nvendor_id\t: AxebergOS\nmodel name\t: Virtual CPU @ WASM\ncpu MHz\t\t: 1000.000\ncache size\t: 256 KB\nflags\t\t: wasm virtual\n\n")
	case "version":
		return []byte("AxebergOS version 0.1.0 (go) #1 WASM\n")
	case "loadavg":
		load := float64(sys.NumProcesses) * 0.1
		return []byte(fmt.Sprintf("%.2f %.2f %.2f %d/%d 1\n", load, load*0.9, load*0.8, sys.NumProcesses, sys.NumProcesses))
	case "stat":
		return []byte(fmt.Sprintf("cpu  0 0 0 0 0 0 0 0 0 0\nprocesses %d\nprocs_running 1\nprocs_blocked 0\n", sys.NumProcesses))
	case "mounts":
		return []byte("/ / memfs rw 0 0\n/proc /proc proc rw 0 0\n")
	case "self":
		return nil // symlink, not content
	}

	parts := strings.Split(rest, "/")
	if len(parts) == 0 {
		return nil
	}
	var pid uint32
	if parts[0] == "self" {
		pid = callerPID
	} else {
		n, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil
		}
		pid = uint32(n)
	}
	subparts := parts[1:]
	if len(subparts) == 0 {
		return nil
	}

	ctx, found := procInfo(pid)
	if !found {
		return nil
	}

	switch subparts[0] {
	case "cmdline":
		return []byte(strings.ReplaceAll(ctx.Cmdline, " ", "\x00") + "\x00")
	case "cwd":
		return []byte(ctx.Cwd)
	case "exe":
		return []byte(fmt.Sprintf("/bin/%s", ctx.Name))
	case "environ":
		var b strings.Builder
		for _, kv := range ctx.Environ {
			b.WriteString(kv[0])
			b.WriteByte('=')
			b.WriteString(kv[1])
			b.WriteByte(0)
		}
		return []byte(b.String())
	case "status":
		ppid := uint32(0)
		if ctx.HasPPID {
			ppid = ctx.PPID
		}
		return []byte(fmt.Sprintf(
			"Name:\t%s\nState:\t%s\nPid:\t%d\nPPid:\t%d\nUid:\t%d\t%d\t%d\t%d\nGid:\t%d\t%d\t%d\t%d\nVmSize:\t%d kB\nVmRSS:\t%d kB\n",
			ctx.Name, ctx.State, ctx.PID, ppid,
			ctx.UID, ctx.UID, ctx.UID, ctx.UID,
			ctx.GID, ctx.GID, ctx.GID, ctx.GID,
			ctx.MemoryLimit/1024, ctx.MemoryUsed/1024))
	case "stat":
		ppid := uint32(0)
		if ctx.HasPPID {
			ppid = ctx.PPID
		}
		stateChar := byte('S')
		if len(ctx.State) > 0 {
			stateChar = ctx.State[0]
		}
		return []byte(fmt.Sprintf("%d (%s) %c %d %d 0 0 0 0 0 0 0 0 0 0 0 1 0 0 %d 0\n",
			ctx.PID, ctx.Name, stateChar, ppid, ctx.PID, ctx.MemoryUsed))
	case "maps":
		return []byte(fmt.Sprintf("00000000-%08x r-xp 00000000 00:00 0 [code]\n%08x-%08x rw-p 00000000 00:00 0 [heap]\n",
			ctx.MemoryLimit, ctx.MemoryLimit, ctx.MemoryLimit+ctx.MemoryUsed))
	case "fd":
		if len(subparts) == 1 {
			return nil // directory
		}
		switch subparts[1] {
		case "0":
			return []byte("/dev/stdin")
		case "1":
			return []byte("/dev/stdout")
		case "2":
			return []byte("/dev/stderr")
		default:
			return []byte(fmt.Sprintf("pipe:[%s]", subparts[1]))
		}
	default:
		return nil
	}
}
