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

package kernel

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// Pid is a dense, monotonically allocated process identifier, never
// reused within one boot while a zombie or any ancestor reference exists.
type Pid uint64

// ProcState is a process's position in its lifecycle.
type ProcState int

const (
	Runnable ProcState = iota
	Sleeping
	Stopped
	Zombie
	Dead
)

func (s ProcState) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	case Zombie:
		return "zombie"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// RLimits are the advisory resource bounds consulted before allocation,
// not enforced at the host level.
type RLimits struct {
	MaxFDs         uint64
	MaxMemoryBytes uint64
	MaxCPUMs       uint64
}

// DefaultRLimits returns the bounds a freshly spawned root process gets
// absent a parent to inherit from.
func DefaultRLimits() RLimits {
	return RLimits{MaxFDs: 1024, MaxMemoryBytes: 256 << 20, MaxCPUMs: 0}
}

// FDEntry is a process's view of an open file descriptor: a tag plus an
// opaque key resolved against the owning subsystem's table (memfs inode,
// pipe end, shm mapping, synthesized reader, ...).
type FDEntry struct {
	Kind string
	Key  uint64
}

// Process is a single entry in the ProcessTable.
type Process struct {
	PID       Pid
	ParentPID Pid
	HasParent bool
	Name      string
	State     ProcState
	UID, GID  uint32
	Cwd       string
	Env       map[string]string
	Cmdline   []string
	Rlimits   RLimits
	Signals   *ProcessSignals
	ExitCode  int
	Children  []Pid
	TaskID    TaskID
	MemBytes  uint64

	fds    map[int]FDEntry
	nextFD int
}

func newRootFDs() map[int]FDEntry {
	return map[int]FDEntry{
		0: {Kind: "stdin"},
		1: {Kind: "stdout"},
		2: {Kind: "stderr"},
	}
}

// AllocFD reserves the lowest unused fd >= 3 and binds it to entry,
// failing with ErrTooManyFDs if doing so would exceed Rlimits.MaxFDs.
func (p *Process) AllocFD(entry FDEntry) (int, error) {
	if p.Rlimits.MaxFDs != 0 && uint64(len(p.fds)) >= p.Rlimits.MaxFDs {
		return -1, ErrTooManyFDs
	}
	fd := 3
	for {
		if _, taken := p.fds[fd]; !taken {
			break
		}
		fd++
	}
	p.fds[fd] = entry
	p.nextFD = fd + 1
	return fd, nil
}

// FD resolves fd to its backing entry.
func (p *Process) FD(fd int) (FDEntry, bool) {
	e, ok := p.fds[fd]
	return e, ok
}

// CloseFD removes fd from the table. The caller is responsible for
// releasing the backing object's refcount.
func (p *Process) CloseFD(fd int) (FDEntry, bool) {
	e, ok := p.fds[fd]
	if ok {
		delete(p.fds, fd)
	}
	return e, ok
}

// OpenFDs returns every currently open fd, for /proc/<pid>/fd synthesis.
func (p *Process) OpenFDs() []int {
	out := make([]int, 0, len(p.fds))
	for fd := range p.fds {
		out = append(out, fd)
	}
	return out
}

// ProcessError reports a process-table operation failure.
type ProcessError struct {
	Msg string
}

func (e *ProcessError) Error() string { return e.Msg }

// Sentinel process-table errors.
var (
	ErrTooManyFDs    = &ProcessError{"too many open file descriptors"}
	ErrNoSuchProcess = &ProcessError{"no such process"}
	ErrNotAChild     = &ProcessError{"not a child of the given parent"}
	ErrNotAZombie    = &ProcessError{"process is not a zombie"}
)

// ProcessTable owns every live and zombie Process, keyed by Pid.
type ProcessTable struct {
	procs   map[Pid]*Process
	nextPID uint64

	// onSignal, if set, is invoked whenever Exit queues SIGCHLD for a
	// parent, letting the caller wake the parent's task.
	onSignal func(pid Pid, sig Signal)
}

// NewProcessTable creates an empty table.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{procs: make(map[Pid]*Process)}
}

// OnSignal registers a callback invoked whenever the table delivers a
// signal to a process as a side effect of exit/reap bookkeeping.
func (t *ProcessTable) OnSignal(fn func(pid Pid, sig Signal)) { t.onSignal = fn }

// Spawn allocates a new Pid and Process, inheriting cwd/env/rlimits from
// the parent (if any) via a deep copy so later parent mutation never
// leaks into the child.
func (t *ProcessTable) Spawn(name string, parent Pid, hasParent bool, cmdline []string) (*Process, error) {
	t.nextPID++
	pid := Pid(t.nextPID)

	p := &Process{
		PID:       pid,
		ParentPID: parent,
		HasParent: hasParent,
		Name:      name,
		State:     Runnable,
		Cwd:       "/",
		Env:       map[string]string{},
		Cmdline:   cmdline,
		Rlimits:   DefaultRLimits(),
		Signals:   NewProcessSignals(),
		fds:       newRootFDs(),
		nextFD:    3,
	}

	if hasParent {
		parentProc, ok := t.procs[parent]
		if !ok {
			return nil, fmt.Errorf("spawn: %w: parent pid %d", ErrNoSuchProcess, parent)
		}
		p.Cwd = parentProc.Cwd
		p.Env = deepcopy.Copy(parentProc.Env).(map[string]string)
		p.Rlimits = parentProc.Rlimits
		p.UID, p.GID = parentProc.UID, parentProc.GID
		parentProc.Children = append(parentProc.Children, pid)
	}

	t.procs[pid] = p
	return p, nil
}

// Get returns the process for pid.
func (t *ProcessTable) Get(pid Pid) (*Process, bool) {
	p, ok := t.procs[pid]
	return p, ok
}

// Exit transitions pid to Zombie, recording its exit code, and queues
// SIGCHLD on its parent (if any).
func (t *ProcessTable) Exit(pid Pid, code int) error {
	p, ok := t.procs[pid]
	if !ok {
		return fmt.Errorf("exit: %w: pid %d", ErrNoSuchProcess, pid)
	}
	p.State = Zombie
	p.ExitCode = code

	if p.HasParent {
		if parentProc, ok := t.procs[p.ParentPID]; ok {
			parentProc.Signals.Send(SIGCHLD)
			if t.onSignal != nil {
				t.onSignal(p.ParentPID, SIGCHLD)
			}
		}
	}
	return nil
}

// Reap collects a zombie child's exit code and frees its Pid. It fails if
// child is not a zombie whose ParentPID is parent.
func (t *ProcessTable) Reap(parent, child Pid) (int, error) {
	c, ok := t.procs[child]
	if !ok {
		return 0, fmt.Errorf("reap: %w: pid %d", ErrNoSuchProcess, child)
	}
	if !c.HasParent || c.ParentPID != parent {
		return 0, fmt.Errorf("reap: %w", ErrNotAChild)
	}
	if c.State != Zombie {
		return 0, fmt.Errorf("reap: %w", ErrNotAZombie)
	}

	code := c.ExitCode
	if parentProc, ok := t.procs[parent]; ok {
		parentProc.Children = removePid(parentProc.Children, child)
	}
	c.State = Dead
	delete(t.procs, child)
	return code, nil
}

// SetRLimit updates one of pid's resource bounds.
func (t *ProcessTable) SetRLimit(pid Pid, limits RLimits) error {
	p, ok := t.procs[pid]
	if !ok {
		return fmt.Errorf("setrlimit: %w: pid %d", ErrNoSuchProcess, pid)
	}
	p.Rlimits = limits
	return nil
}

// GetRLimit returns pid's current resource bounds.
func (t *ProcessTable) GetRLimit(pid Pid) (RLimits, error) {
	p, ok := t.procs[pid]
	if !ok {
		return RLimits{}, fmt.Errorf("getrlimit: %w: pid %d", ErrNoSuchProcess, pid)
	}
	return p.Rlimits, nil
}

// All returns every process currently in the table (live and zombie), for
// /proc enumeration.
func (t *ProcessTable) All() []*Process {
	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out
}

func removePid(pids []Pid, target Pid) []Pid {
	out := pids[:0:0]
	for _, p := range pids {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}
