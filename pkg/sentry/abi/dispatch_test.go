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
	"testing"

	"axeberg.dev/os/pkg/sentry/ipc"
	"axeberg.dev/os/pkg/sentry/kernel"
	"axeberg.dev/os/pkg/sentry/lock"
	"axeberg.dev/os/pkg/sentry/vfs"
)

// fakeMemory is a flat byte slice standing in for a guest's linear memory.
type fakeMemory struct {
	buf []byte
}

func newFakeMemory(size int) *fakeMemory { return &fakeMemory{buf: make([]byte, size)} }

func (m *fakeMemory) Read(ptr, length uint32) ([]byte, error) {
	end := ptr + length
	if end > uint32(len(m.buf)) {
		return nil, ErrGeneric
	}
	out := make([]byte, length)
	copy(out, m.buf[ptr:end])
	// Arguments read as strings are NUL-delimited; trim any trailing
	// padding the caller over-allocated for.
	for i, b := range out {
		if b == 0 {
			return out[:i], nil
		}
	}
	return out, nil
}

func (m *fakeMemory) Write(ptr uint32, data []byte) error {
	end := ptr + uint32(len(data))
	if end > uint32(len(m.buf)) {
		return ErrGeneric
	}
	copy(m.buf[ptr:end], data)
	return nil
}

func newTestDispatcher() (*Dispatcher, *kernel.Executor, *kernel.ProcessTable, kernel.Pid) {
	exec := kernel.NewExecutor()
	procs := kernel.NewProcessTable()
	fs := vfs.New()
	locks := lock.NewManager()
	fifos := ipc.NewFifoRegistry()
	msgs := ipc.NewMsgQueueManager()
	sems := ipc.NewSemaphoreManager()
	shm := ipc.NewShmManager()

	d := NewDispatcher(exec, procs, fs, locks, fifos, msgs, sems, shm, func() int64 { return 0 })

	p, err := procs.Spawn("init", 0, false, []string{"init"})
	if err != nil {
		panic(err)
	}
	return d, exec, procs, p.PID
}

func writeCString(mem *fakeMemory, ptr uint32, s string) uint32 {
	copy(mem.buf[ptr:], s)
	mem.buf[ptr+uint32(len(s))] = 0
	return uint32(len(s))
}

func TestDispatchOpenWriteReadRoundTrip(t *testing.T) {
	d, _, _, pid := newTestDispatcher()
	mem := newFakeMemory(4096)

	pathLen := writeCString(mem, 0, "/greeting")
	openRes := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 0, A1: pathLen, A2: uint32(OpenWrite | OpenCreate)})
	if openRes.Value < 0 {
		t.Fatalf("open for write failed: %d", openRes.Value)
	}
	fd := uint32(openRes.Value)

	writeCString(mem, 100, "hello")
	writeRes := d.Dispatch(pid, mem, Call{Name: SyscallWrite, A0: fd, A1: 100, A2: 5})
	if writeRes.Value != 5 {
		t.Fatalf("write returned %d, want 5", writeRes.Value)
	}
	d.Dispatch(pid, mem, Call{Name: SyscallClose, A0: fd})

	openRes = d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 0, A1: pathLen, A2: uint32(OpenRead)})
	if openRes.Value < 0 {
		t.Fatalf("open for read failed: %d", openRes.Value)
	}
	readFd := uint32(openRes.Value)
	readRes := d.Dispatch(pid, mem, Call{Name: SyscallRead, A0: readFd, A1: 200, A2: 16})
	if readRes.Value != 5 {
		t.Fatalf("read returned %d, want 5", readRes.Value)
	}
	got, _ := mem.Read(200, 5)
	if string(got) != "hello" {
		t.Fatalf("read content = %q, want %q", got, "hello")
	}
}

func TestDispatchOpenMissingWithoutCreateFails(t *testing.T) {
	d, _, _, pid := newTestDispatcher()
	mem := newFakeMemory(4096)
	pathLen := writeCString(mem, 0, "/nope")

	res := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 0, A1: pathLen, A2: uint32(OpenRead)})
	if res.Value != ErrNotFound.Code() {
		t.Fatalf("open missing file = %d, want %d", res.Value, ErrNotFound.Code())
	}
}

func TestDispatchMkdirReaddirRmdir(t *testing.T) {
	d, _, _, pid := newTestDispatcher()
	mem := newFakeMemory(4096)

	dirLen := writeCString(mem, 0, "/work")
	if res := d.Dispatch(pid, mem, Call{Name: SyscallMkdir, A0: 0, A1: dirLen}); res.Value != 0 {
		t.Fatalf("mkdir failed: %d", res.Value)
	}

	fileLen := writeCString(mem, 200, "/work/a")
	openRes := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 200, A1: fileLen, A2: uint32(OpenWrite | OpenCreate)})
	if openRes.Value < 0 {
		t.Fatalf("create file: %d", openRes.Value)
	}
	d.Dispatch(pid, mem, Call{Name: SyscallClose, A0: uint32(openRes.Value)})

	readRes := d.Dispatch(pid, mem, Call{Name: SyscallReaddir, A0: 0, A1: dirLen, A2: 1000, A3: 512})
	if readRes.Value != 1 {
		t.Fatalf("readdir count = %d, want 1", readRes.Value)
	}
	listing, _ := mem.Read(1000, 2)
	if string(listing) != "a" {
		t.Fatalf("readdir listing = %q, want %q", listing, "a")
	}

	unlinkLen := writeCString(mem, 2000, "/work/a")
	if res := d.Dispatch(pid, mem, Call{Name: SyscallUnlink, A0: 2000, A1: unlinkLen}); res.Value != 0 {
		t.Fatalf("unlink failed: %d", res.Value)
	}
	if res := d.Dispatch(pid, mem, Call{Name: SyscallRmdir, A0: 0, A1: dirLen}); res.Value != 0 {
		t.Fatalf("rmdir failed: %d", res.Value)
	}
}

func TestDispatchGetenvAndGetcwd(t *testing.T) {
	d, _, procs, pid := newTestDispatcher()
	mem := newFakeMemory(4096)

	proc, _ := procs.Get(pid)
	proc.Env["GREETING"] = "hi"
	proc.Cwd = "/home/init"

	nameLen := writeCString(mem, 0, "GREETING")
	res := d.Dispatch(pid, mem, Call{Name: SyscallGetenv, A0: 0, A1: nameLen, A2: 100, A3: 32})
	if res.Value != 2 {
		t.Fatalf("getenv length = %d, want 2", res.Value)
	}
	got, _ := mem.Read(100, 2)
	if string(got) != "hi" {
		t.Fatalf("getenv value = %q, want %q", got, "hi")
	}

	cwdRes := d.Dispatch(pid, mem, Call{Name: SyscallGetcwd, A0: 300, A1: 64})
	if int(cwdRes.Value) != len("/home/init") {
		t.Fatalf("getcwd length = %d, want %d", cwdRes.Value, len("/home/init"))
	}
	gotCwd, _ := mem.Read(300, uint32(cwdRes.Value))
	if string(gotCwd) != "/home/init" {
		t.Fatalf("getcwd value = %q, want %q", gotCwd, "/home/init")
	}
}

func TestDispatchStatReportsSize(t *testing.T) {
	d, _, _, pid := newTestDispatcher()
	mem := newFakeMemory(4096)

	pathLen := writeCString(mem, 0, "/f")
	openRes := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 0, A1: pathLen, A2: uint32(OpenWrite | OpenCreate)})
	fd := uint32(openRes.Value)
	writeCString(mem, 100, "abcd")
	d.Dispatch(pid, mem, Call{Name: SyscallWrite, A0: fd, A1: 100, A2: 4})
	d.Dispatch(pid, mem, Call{Name: SyscallClose, A0: fd})

	statRes := d.Dispatch(pid, mem, Call{Name: SyscallStat, A0: 0, A1: pathLen, A2: 500})
	if statRes.Value != 0 {
		t.Fatalf("stat failed: %d", statRes.Value)
	}
	raw, _ := mem.Read(500, StatSize)
	var arr [StatSize]byte
	copy(arr[:], raw)
	buf := StatBufFromBytes(arr)
	if buf.Size != 4 || buf.IsDir != 0 {
		t.Fatalf("stat buf = %+v, want size=4 isDir=0", buf)
	}
}

// TestDispatchLockConflictSuspendsAndWakesOnRelease exercises the lock
// wake path: a task suspended on the WaitLock source of a path whose
// exclusive lock is held (as a caller that met ErrWouldBlock suspends) is
// woken the instant the holder releases, rather than retrying blindly.
func TestDispatchLockConflictSuspendsAndWakesOnRelease(t *testing.T) {
	exec := kernel.NewExecutor()
	locks := lock.NewManager()

	const path = "/locked"
	if err := locks.Flock(path, 1, lock.Exclusive, true); err != nil {
		t.Fatalf("initial flock: %v", err)
	}

	locks.OnRelease(func(pathKey uint64) {
		exec.WakeSource(kernel.WaitSource{Kind: kernel.WaitLock, Key: pathKey})
	})

	key := lock.PathKey(path)
	waiterID := exec.Spawn(&blockOnceRunner{src: kernel.WaitSource{Kind: kernel.WaitLock, Key: key}}, 0)

	exec.RunUntilIdle(0)
	if exec.PendingWaiters(kernel.WaitSource{Kind: kernel.WaitLock, Key: key}) != 1 {
		t.Fatalf("expected one pending waiter after first run")
	}

	locks.Flock(path, 1, lock.Unlock, true)

	if !exec.IsAlive(waiterID) {
		t.Fatalf("waiter task should still be alive before its second run")
	}
	exec.RunUntilIdle(0)
	if exec.PendingWaiters(kernel.WaitSource{Kind: kernel.WaitLock, Key: key}) != 0 {
		t.Fatalf("waiter should have been woken and drained")
	}
}

// blockOnceRunner blocks on src the first time it runs, then completes.
type blockOnceRunner struct {
	src     kernel.WaitSource
	blocked bool
}

func (r *blockOnceRunner) Run(now int64) kernel.Outcome {
	if r.blocked {
		return kernel.Outcome{Status: kernel.Done}
	}
	r.blocked = true
	return kernel.Outcome{Status: kernel.Blocked, Wait: r.src}
}

func TestDispatchFifoReadBlocksThenWakesOnWrite(t *testing.T) {
	d, _, _, pid := newTestDispatcher()
	mem := newFakeMemory(4096)

	if err := d.fifos.Mkfifo("/fifo"); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	d.fs.Mkfifo("/fifo")

	readPathLen := writeCString(mem, 0, "/fifo")
	readOpen := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 0, A1: readPathLen, A2: uint32(OpenRead), Blocking: true})
	if readOpen.Value < 0 {
		t.Fatalf("open fifo for read: %d", readOpen.Value)
	}
	readFd := uint32(readOpen.Value)

	writePathLen := writeCString(mem, 50, "/fifo")
	writeOpen := d.Dispatch(pid, mem, Call{Name: SyscallOpen, A0: 50, A1: writePathLen, A2: uint32(OpenWrite), Blocking: true})
	if writeOpen.Value < 0 {
		t.Fatalf("open fifo for write: %d", writeOpen.Value)
	}
	writeFd := uint32(writeOpen.Value)

	// Buffer is empty but a writer is attached, so a blocking read must
	// suspend rather than report EOF.
	readResult := d.Dispatch(pid, mem, Call{Name: SyscallRead, A0: readFd, A1: 200, A2: 16, Blocking: true})
	if !readResult.Suspend {
		t.Fatalf("read on empty fifo with an attached writer should suspend, got %+v", readResult)
	}
	if readResult.Wait.Kind != kernel.WaitFD {
		t.Fatalf("suspend wait kind = %v, want WaitFD", readResult.Wait.Kind)
	}

	writeCString(mem, 300, "hi")
	writeResult := d.Dispatch(pid, mem, Call{Name: SyscallWrite, A0: writeFd, A1: 300, A2: 2})
	if writeResult.Value != 2 {
		t.Fatalf("write returned %d, want 2", writeResult.Value)
	}

	// Re-issuing the read after the write landed must now succeed instead
	// of suspending again.
	retryResult := d.Dispatch(pid, mem, Call{Name: SyscallRead, A0: readFd, A1: 200, A2: 16, Blocking: true})
	if retryResult.Suspend || retryResult.Value != 2 {
		t.Fatalf("retried read = %+v, want a completed 2-byte read", retryResult)
	}
}
