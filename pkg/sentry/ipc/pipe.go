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

// Package ipc implements the System-V-style primitives: pipes/FIFOs,
// message queues, semaphore sets, and shared memory. Only shared memory
// segments are freed by reference count: a segment goes when its last
// attach is dropped, unless it carries a persistent key. Pipe and FIFO
// buffers count their reader and writer ends, but a named FIFO is removed
// only by Unlink; message queues and semaphore sets are removed only by an
// explicit remove call, never by dropping references.
package ipc

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/containerd/fifo"
)

// Errors returned by pipe/FIFO operations.
var (
	ErrWouldBlock     = errors.New("pipe: would block")
	ErrBrokenPipe     = errors.New("pipe: broken pipe")
	ErrFifoNotFound   = errors.New("fifo: not found")
	ErrFifoExists     = errors.New("fifo: already exists")
	ErrFifoBufferFull = errors.New("fifo: buffer full")
)

// DefaultCapacity is the byte capacity a FIFO gets when none is specified,
// matching the 64KiB default of the original host implementation.
const DefaultCapacity = 64 * 1024

// Buffer is a bounded byte ring shared by a pipe or FIFO's reader and
// writer ends.
type Buffer struct {
	data     []byte
	capacity int
	readers  int
	writers  int
}

// NewBuffer creates an empty buffer bounded at capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Write appends as much of data as fits. Succeeds partially (short write)
// when the buffer is nearly full; returns ErrWouldBlock only when no
// writer could make progress on a non-empty input and the caller should
// suspend; returns ErrBrokenPipe when there are no readers at all.
func (b *Buffer) Write(data []byte) (int, error) {
	if b.readers == 0 {
		return 0, ErrBrokenPipe
	}
	available := b.capacity - len(b.data)
	n := len(data)
	if n > available {
		n = available
	}
	b.data = append(b.data, data[:n]...)
	if n == 0 && len(data) != 0 {
		return 0, ErrWouldBlock
	}
	return n, nil
}

// Read drains up to len(buf) bytes. Returns (0, nil) at EOF (empty buffer,
// no writers); returns ErrWouldBlock on an empty buffer with writers still
// attached.
func (b *Buffer) Read(buf []byte) (int, error) {
	if len(b.data) == 0 {
		if b.writers == 0 {
			return 0, nil
		}
		return 0, ErrWouldBlock
	}
	n := len(buf)
	if n > len(b.data) {
		n = len(b.data)
	}
	copy(buf, b.data[:n])
	b.data = b.data[n:]
	return n, nil
}

// IsReadable reports whether a read would return data or EOF without
// blocking.
func (b *Buffer) IsReadable() bool { return len(b.data) != 0 || b.writers == 0 }

// IsWritable reports whether a write would make progress without
// blocking.
func (b *Buffer) IsWritable() bool { return len(b.data) < b.capacity && b.readers > 0 }

// AddReader/RemoveReader/AddWriter/RemoveWriter adjust the end refcounts;
// Remove* saturates at zero.
func (b *Buffer) AddReader()    { b.readers++ }
func (b *Buffer) AddWriter()    { b.writers++ }
func (b *Buffer) RemoveReader() { b.readers = satSub(b.readers) }
func (b *Buffer) RemoveWriter() { b.writers = satSub(b.writers) }

func satSub(n int) int {
	if n == 0 {
		return 0
	}
	return n - 1
}

// Available returns the number of unread bytes currently buffered.
func (b *Buffer) Available() int { return len(b.data) }

// Readers and Writers expose the current end counts, for /proc and ctl
// introspection.
func (b *Buffer) Readers() int { return b.readers }
func (b *Buffer) Writers() int { return b.writers }

// HostMirror wires a named FIFO's writes through to a real host-side named
// pipe opened via containerd/fifo, letting a host embedder observe (or
// feed) a guest FIFO from outside the kernel — e.g. streaming a guest
// process's piped stdout to a real log FIFO on the host filesystem. A FIFO
// with no mirror bound behaves exactly as before: a pure in-memory ring
// buffer with no host visibility.
type HostMirror struct {
	rwc io.ReadWriteCloser
}

// OpenHostMirror opens (creating it if necessary) a real named pipe at
// hostPath. flag/perm follow os.OpenFile conventions (e.g.
// os.O_WRONLY|os.O_CREATE for a mirror the guest writes into); ctx bounds
// only the open(2) call itself, not the pipe's subsequent lifetime.
func OpenHostMirror(ctx context.Context, hostPath string, flag int, perm os.FileMode) (*HostMirror, error) {
	rwc, err := fifo.OpenFifo(ctx, hostPath, flag, perm)
	if err != nil {
		return nil, err
	}
	return &HostMirror{rwc: rwc}, nil
}

// Close releases the host-side pipe.
func (h *HostMirror) Close() error { return h.rwc.Close() }

// FifoRegistry is the named-FIFO namespace: a path-keyed map of shared
// Buffers, mirroring mkfifo(2)/unlink(2) semantics.
type FifoRegistry struct {
	fifos           map[string]*Buffer
	mirrors         map[string]*HostMirror
	defaultCapacity int
}

// NewFifoRegistry creates an empty registry using DefaultCapacity for new
// FIFOs.
func NewFifoRegistry() *FifoRegistry {
	return &FifoRegistry{
		fifos:           make(map[string]*Buffer),
		mirrors:         make(map[string]*HostMirror),
		defaultCapacity: DefaultCapacity,
	}
}

// Mkfifo creates a new named FIFO at path.
func (r *FifoRegistry) Mkfifo(path string) error {
	if _, ok := r.fifos[path]; ok {
		return ErrFifoExists
	}
	r.fifos[path] = NewBuffer(r.defaultCapacity)
	return nil
}

// BindHostMirror attaches a host-backed mirror to an existing named FIFO.
// Subsequent WriteThrough calls for path also write to the host pipe;
// Unlink closes and detaches it.
func (r *FifoRegistry) BindHostMirror(path string, m *HostMirror) error {
	if _, ok := r.fifos[path]; !ok {
		return ErrFifoNotFound
	}
	r.mirrors[path] = m
	return nil
}

// WriteThrough writes data into path's in-memory buffer and, if a host
// mirror is bound, also writes the accepted bytes to the host-side pipe.
func (r *FifoRegistry) WriteThrough(path string, data []byte) (int, error) {
	b, ok := r.fifos[path]
	if !ok {
		return 0, ErrFifoNotFound
	}
	n, err := b.Write(data)
	if n > 0 {
		if m, ok := r.mirrors[path]; ok {
			if _, werr := m.rwc.Write(data[:n]); werr != nil {
				return n, werr
			}
		}
	}
	return n, err
}

// Unlink removes the FIFO at path, closing its host mirror if one is bound.
func (r *FifoRegistry) Unlink(path string) error {
	if _, ok := r.fifos[path]; !ok {
		return ErrFifoNotFound
	}
	if m, ok := r.mirrors[path]; ok {
		m.Close()
		delete(r.mirrors, path)
	}
	delete(r.fifos, path)
	return nil
}

// Get returns the buffer backing path, if any.
func (r *FifoRegistry) Get(path string) (*Buffer, bool) {
	b, ok := r.fifos[path]
	return b, ok
}

// IsFifo reports whether path names a FIFO.
func (r *FifoRegistry) IsFifo(path string) bool {
	_, ok := r.fifos[path]
	return ok
}

// List returns every registered FIFO path.
func (r *FifoRegistry) List() []string {
	out := make([]string, 0, len(r.fifos))
	for p := range r.fifos {
		out = append(out, p)
	}
	return out
}
