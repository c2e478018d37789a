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

package abi

import (
	"strings"

	"axeberg.dev/os/pkg/sentry/ipc"
	"axeberg.dev/os/pkg/sentry/kernel"
	"axeberg.dev/os/pkg/sentry/lock"
	"axeberg.dev/os/pkg/sentry/vfs"
)

// GuestMemory is the narrow view of a command's linear memory export the
// dispatcher needs: reading argument buffers and paths, and writing back
// syscall results (stat buffers, readdir listings, getcwd/getenv output).
type GuestMemory interface {
	Read(ptr, length uint32) ([]byte, error)
	Write(ptr uint32, data []byte) error
}

// Call is one syscall invocation. Every pointer-shaped argument is a
// (ptr, len) pair of little-endian u32 offsets into the calling command's
// GuestMemory. Blocking mirrors whether the caller is prepared to suspend
// on WouldBlock (a non-blocking fd, or O_NONBLOCK-style request, sets it
// false and expects ErrGeneric-class failure instead of suspension).
type Call struct {
	Name                   string
	A0, A1, A2, A3, A4, A5 uint32
	Blocking               bool
}

// Result is what dispatching a Call produces: either a completed return
// value (the syscall's own non-negative-success/negative-SyscallError
// convention) or a signal that the calling task must suspend on Wait
// until the Executor wakes it, at which point the caller is expected to
// re-issue the identical Call.
type Result struct {
	Suspend bool
	Wait    kernel.WaitSource
	Value   int32
}

func done(v int32) Result                    { return Result{Value: v} }
func failWith(e SyscallError) Result         { return Result{Value: e.Code()} }
func suspendOn(src kernel.WaitSource) Result { return Result{Suspend: true, Wait: src} }

type openHandle struct {
	path   string
	offset int
	flags  OpenFlags
	fifo   bool
}

// Dispatcher implements every syscall a guest binary imports under
// ImportNamespace, translating each into an operation against one
// kernel's process table, VFS, lock manager, and IPC managers.
type Dispatcher struct {
	procs *kernel.ProcessTable
	fs    *vfs.VirtualFilesystem
	locks *lock.Manager
	fifos *ipc.FifoRegistry
	msgs  *ipc.MsgQueueManager
	sems  *ipc.SemaphoreManager
	shm   *ipc.ShmManager
	exec  *kernel.Executor

	handles    map[uint64]*openHandle
	nextHandle uint64

	now func() int64
}

// NewDispatcher wires locks.OnRelease to exec.WakeSource so a task
// suspended on a lock's WaitLock source resumes as soon as any holder on
// that path releases. Blocking FIFO reads and writes are the other
// requests here that suspend the task instead of failing with WouldBlock.
func NewDispatcher(exec *kernel.Executor, procs *kernel.ProcessTable, fs *vfs.VirtualFilesystem, locks *lock.Manager, fifos *ipc.FifoRegistry, msgs *ipc.MsgQueueManager, sems *ipc.SemaphoreManager, shm *ipc.ShmManager, now func() int64) *Dispatcher {
	d := &Dispatcher{
		procs:   procs,
		fs:      fs,
		locks:   locks,
		fifos:   fifos,
		msgs:    msgs,
		sems:    sems,
		shm:     shm,
		exec:    exec,
		handles: make(map[uint64]*openHandle),
		now:     now,
	}
	locks.OnRelease(func(pathKey uint64) {
		exec.WakeSource(kernel.WaitSource{Kind: kernel.WaitLock, Key: pathKey})
	})
	return d
}

func (d *Dispatcher) resolveCtx(pid kernel.Pid) vfs.ResolveCtx {
	return vfs.ResolveCtx{
		CallerPID: uint32(pid),
		Pids: func() []uint32 {
			procs := d.procs.All()
			out := make([]uint32, len(procs))
			for i, p := range procs {
				out[i] = uint32(p.PID)
			}
			return out
		},
		ProcInfo: func(rawPid uint32) (vfs.ProcContext, bool) {
			p, ok := d.procs.Get(kernel.Pid(rawPid))
			if !ok {
				return vfs.ProcContext{}, false
			}
			env := make([][2]string, 0, len(p.Env))
			for k, v := range p.Env {
				env = append(env, [2]string{k, v})
			}
			ppid, hasPPID := uint32(0), p.HasParent
			if hasPPID {
				ppid = uint32(p.ParentPID)
			}
			return vfs.ProcContext{
				PID:         uint32(p.PID),
				PPID:        ppid,
				HasPPID:     hasPPID,
				Name:        p.Name,
				State:       p.State.String(),
				UID:         p.UID,
				GID:         p.GID,
				Cwd:         p.Cwd,
				Cmdline:     strings.Join(p.Cmdline, " "),
				Environ:     env,
				MemoryUsed:  p.MemBytes,
				MemoryLimit: p.Rlimits.MaxMemoryBytes,
			}, true
		},
		SysInfo: func() vfs.SystemContext {
			procs := d.procs.All()
			return vfs.SystemContext{NumProcesses: len(procs)}
		},
	}
}

func readString(mem GuestMemory, ptr, length uint32) (string, error) {
	b, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Dispatch executes one syscall on behalf of pid, using mem to satisfy any
// pointer-shaped argument.
func (d *Dispatcher) Dispatch(pid kernel.Pid, mem GuestMemory, c Call) Result {
	proc, ok := d.procs.Get(pid)
	if !ok {
		return failWith(ErrGeneric)
	}

	switch c.Name {
	case SyscallOpen:
		return d.sysOpen(pid, proc, mem, c)
	case SyscallClose:
		return d.sysClose(pid, proc, c)
	case SyscallRead:
		return d.sysRead(pid, proc, mem, c)
	case SyscallWrite:
		return d.sysWrite(pid, proc, mem, c)
	case SyscallStat:
		return d.sysStat(pid, mem, c)
	case SyscallMkdir:
		return d.sysMkdir(mem, c)
	case SyscallReaddir:
		return d.sysReaddir(pid, mem, c)
	case SyscallRmdir:
		return d.sysRmdir(mem, c)
	case SyscallUnlink:
		return d.sysUnlink(mem, c)
	case SyscallRename:
		return d.sysRename(mem, c)
	case SyscallExit:
		return d.sysExit(pid, c)
	case SyscallGetenv:
		return d.sysGetenv(proc, mem, c)
	case SyscallGetcwd:
		return d.sysGetcwd(proc, mem, c)
	default:
		return failWith(ErrInvalidArgument)
	}
}

func (d *Dispatcher) sysOpen(pid kernel.Pid, proc *kernel.Process, mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	flags := OpenFlags(int32(c.A2))

	ctx := d.resolveCtx(pid)
	isFifo := d.fifos.IsFifo(path) || d.fs.Mem().IsFifo(path)

	if !d.fs.Exists(ctx, path) {
		if !flags.IsCreate() {
			return failWith(ErrNotFound)
		}
		if err := d.fs.WriteFile(ctx, path, nil); err != nil {
			return failWith(ErrPermissionDenied)
		}
	} else if flags.IsTruncate() && flags.IsWrite() {
		d.fs.WriteFile(ctx, path, nil)
	}

	h := &openHandle{path: path, flags: flags, fifo: isFifo}
	d.nextHandle++
	key := d.nextHandle
	d.handles[key] = h

	if isFifo {
		if buf, ok := d.fifos.Get(path); ok {
			if flags.IsRead() {
				buf.AddReader()
			}
			if flags.IsWrite() {
				buf.AddWriter()
			}
		}
	}

	fd, err := proc.AllocFD(kernel.FDEntry{Kind: "vfs", Key: key})
	if err != nil {
		delete(d.handles, key)
		return failWith(ErrGeneric)
	}
	return done(int32(fd))
}

func (d *Dispatcher) sysClose(pid kernel.Pid, proc *kernel.Process, c Call) Result {
	entry, ok := proc.CloseFD(int(c.A0))
	if !ok {
		return failWith(ErrBadFd)
	}
	h, ok := d.handles[entry.Key]
	if !ok {
		// Standard streams and any other non-vfs-backed fd carry no
		// handle and hold no locks.
		return done(0)
	}
	if h.fifo {
		if buf, found := d.fifos.Get(h.path); found {
			if h.flags.IsRead() {
				buf.RemoveReader()
			}
			if h.flags.IsWrite() {
				buf.RemoveWriter()
			}
		}
	}
	delete(d.handles, entry.Key)
	d.locks.ReleaseFile(h.path, uint64(pid))
	return done(0)
}

func (d *Dispatcher) sysRead(pid kernel.Pid, proc *kernel.Process, mem GuestMemory, c Call) Result {
	entry, ok := proc.FD(int(c.A0))
	if !ok {
		return failWith(ErrBadFd)
	}
	h, ok := d.handles[entry.Key]
	if !ok {
		return failWith(ErrBadFd)
	}

	if h.fifo {
		buf, found := d.fifos.Get(h.path)
		if !found {
			return failWith(ErrNotFound)
		}
		scratch := make([]byte, c.A2)
		n, err := buf.Read(scratch)
		if err == ipc.ErrWouldBlock {
			if !c.Blocking {
				return failWith(ErrGeneric)
			}
			return suspendOn(kernel.WaitSource{Kind: kernel.WaitFD, Key: uint64(entry.Key)})
		}
		if err := mem.Write(c.A1, scratch[:n]); err != nil {
			return failWith(ErrIoError)
		}
		return done(int32(n))
	}

	data, err := d.fs.ReadFile(d.resolveCtx(pid), h.path)
	if err != nil {
		return failWith(ErrIoError)
	}
	if h.offset >= len(data) {
		return done(0)
	}
	end := h.offset + int(c.A2)
	if end > len(data) {
		end = len(data)
	}
	chunk := data[h.offset:end]
	if err := mem.Write(c.A1, chunk); err != nil {
		return failWith(ErrIoError)
	}
	h.offset = end
	return done(int32(len(chunk)))
}

func (d *Dispatcher) sysWrite(pid kernel.Pid, proc *kernel.Process, mem GuestMemory, c Call) Result {
	entry, ok := proc.FD(int(c.A0))
	if !ok {
		return failWith(ErrBadFd)
	}
	h, ok := d.handles[entry.Key]
	if !ok {
		return failWith(ErrBadFd)
	}

	data, err := mem.Read(c.A1, c.A2)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}

	if h.fifo {
		buf, found := d.fifos.Get(h.path)
		if !found {
			return failWith(ErrNotFound)
		}
		n, werr := buf.Write(data)
		if werr == ipc.ErrBrokenPipe {
			return failWith(ErrIoError)
		}
		if werr == ipc.ErrWouldBlock {
			if !c.Blocking {
				return failWith(ErrGeneric)
			}
			return suspendOn(kernel.WaitSource{Kind: kernel.WaitFD, Key: uint64(entry.Key)})
		}
		if n > 0 {
			for k, other := range d.handles {
				if other.fifo && other.path == h.path {
					d.exec.WakeSource(kernel.WaitSource{Kind: kernel.WaitFD, Key: k})
				}
			}
		}
		return done(int32(n))
	}

	existing, _ := d.fs.ReadFile(d.resolveCtx(pid), h.path)
	if h.offset > len(existing) {
		h.offset = len(existing)
	}
	merged := append(existing[:h.offset:h.offset], data...)
	if err := d.fs.WriteFile(d.resolveCtx(pid), h.path, merged); err != nil {
		return failWith(ErrPermissionDenied)
	}
	h.offset += len(data)
	return done(int32(len(data)))
}

func (d *Dispatcher) sysStat(pid kernel.Pid, mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	st, statErr := d.fs.Stat(d.resolveCtx(pid), path)
	if statErr != nil {
		return failWith(ErrNotFound)
	}
	isDir := uint32(0)
	if st.IsDir {
		isDir = 1
	}
	buf := StatBuf{Size: uint32(st.Size), IsDir: isDir, ModifiedTime: uint64(st.ModifiedAt), CreatedTime: uint64(st.CreatedAt)}
	bytes := buf.ToBytes()
	if err := mem.Write(c.A2, bytes[:]); err != nil {
		return failWith(ErrIoError)
	}
	return done(0)
}

func (d *Dispatcher) sysMkdir(mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	if err := d.fs.Mkdir(path); err != nil {
		if err == vfs.ErrExist {
			return failWith(ErrAlreadyExists)
		}
		return failWith(ErrNotFound)
	}
	return done(0)
}

func (d *Dispatcher) sysReaddir(pid kernel.Pid, mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	entries, err := d.fs.ListDir(d.resolveCtx(pid), path)
	if err != nil {
		if err == vfs.ErrNotDir {
			return failWith(ErrNotADirectory)
		}
		return failWith(ErrNotFound)
	}
	joined := strings.Join(entries, "\x00")
	if len(joined) > 0 {
		joined += "\x00"
	}
	if uint32(len(joined)) > c.A3 {
		return failWith(ErrNoSpace)
	}
	if err := mem.Write(c.A2, []byte(joined)); err != nil {
		return failWith(ErrIoError)
	}
	return done(int32(len(entries)))
}

func (d *Dispatcher) sysRmdir(mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	if err := d.fs.Rmdir(path); err != nil {
		switch err {
		case vfs.ErrNotEmpty:
			return failWith(ErrNotEmpty)
		case vfs.ErrNotDir:
			return failWith(ErrNotADirectory)
		default:
			return failWith(ErrNotFound)
		}
	}
	return done(0)
}

func (d *Dispatcher) sysUnlink(mem GuestMemory, c Call) Result {
	path, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	if err := d.fs.Unlink(path); err != nil {
		if err == vfs.ErrIsDir {
			return failWith(ErrIsADirectory)
		}
		return failWith(ErrNotFound)
	}
	return done(0)
}

func (d *Dispatcher) sysRename(mem GuestMemory, c Call) Result {
	oldPath, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	newPath, err := readString(mem, c.A2, c.A3)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	if err := d.fs.Rename(oldPath, newPath); err != nil {
		return failWith(ErrNotFound)
	}
	return done(0)
}

func (d *Dispatcher) sysExit(pid kernel.Pid, c Call) Result {
	d.locks.ReleaseAll(uint64(pid))
	d.shm.ReleaseAll(uint64(pid))
	if err := d.procs.Exit(pid, int(int32(c.A0))); err != nil {
		return failWith(ErrGeneric)
	}
	return done(0)
}

func (d *Dispatcher) sysGetenv(proc *kernel.Process, mem GuestMemory, c Call) Result {
	name, err := readString(mem, c.A0, c.A1)
	if err != nil {
		return failWith(ErrInvalidArgument)
	}
	val, found := proc.Env[name]
	if !found {
		return failWith(ErrNotFound)
	}
	if uint32(len(val)) > c.A3 {
		return failWith(ErrNoSpace)
	}
	if err := mem.Write(c.A2, []byte(val)); err != nil {
		return failWith(ErrIoError)
	}
	return done(int32(len(val)))
}

func (d *Dispatcher) sysGetcwd(proc *kernel.Process, mem GuestMemory, c Call) Result {
	if uint32(len(proc.Cwd)) > c.A1 {
		return failWith(ErrNoSpace)
	}
	if err := mem.Write(c.A0, []byte(proc.Cwd)); err != nil {
		return failWith(ErrIoError)
	}
	return done(int32(len(proc.Cwd)))
}
