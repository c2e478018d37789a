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

// Package abi defines the stable interface between the kernel and guest
// WASM binaries: the required module exports, the syscall namespace, the
// wire layout of stat buffers and argv, and the syscall dispatch table
// itself.
package abi

import "encoding/binary"

// Version is the ABI version guest binaries are built against.
const Version uint32 = 1

// Required export names.
const (
	ExportMemory   = "memory"
	ExportMain     = "main"
	ExportHeapBase = "__heap_base"
)

// ImportNamespace is the module namespace guest binaries import syscalls
// under.
const ImportNamespace = "env"

// Syscall names, also used as dispatch-table keys.
const (
	SyscallOpen    = "open"
	SyscallClose   = "close"
	SyscallRead    = "read"
	SyscallWrite   = "write"
	SyscallStat    = "stat"
	SyscallMkdir   = "mkdir"
	SyscallReaddir = "readdir"
	SyscallRmdir   = "rmdir"
	SyscallUnlink  = "unlink"
	SyscallRename  = "rename"
	SyscallExit    = "exit"
	SyscallGetenv  = "getenv"
	SyscallGetcwd  = "getcwd"
)

// Standard file descriptors.
const (
	FDStdin  int32 = 0
	FDStdout int32 = 1
	FDStderr int32 = 2
)

// OpenFlags is the bitfield passed to the open syscall.
type OpenFlags int32

// Flag bits. READ is the zero value: a bare open() with no bits set reads.
const (
	OpenRead      OpenFlags = 0
	OpenWrite     OpenFlags = 1
	OpenReadWrite OpenFlags = 2
	OpenCreate    OpenFlags = 4
	OpenTruncate  OpenFlags = 8
)

// IsRead reports whether the flags permit reading: the bare-zero case, or
// the read+write bit.
func (f OpenFlags) IsRead() bool { return f == 0 || f&OpenReadWrite != 0 }

// IsWrite reports whether the flags permit writing: the write bit or the
// read+write bit.
func (f OpenFlags) IsWrite() bool { return f&OpenWrite != 0 || f&OpenReadWrite != 0 }

// IsCreate reports whether the create bit is set.
func (f OpenFlags) IsCreate() bool { return f&OpenCreate != 0 }

// IsTruncate reports whether the truncate bit is set.
func (f OpenFlags) IsTruncate() bool { return f&OpenTruncate != 0 }

// SyscallError is a negative errno-style result a syscall may return.
type SyscallError int32

// Error codes, mirroring the negative-integer convention every syscall
// uses in place of a richer error type (guest binaries only see an i32).
const (
	ErrGeneric          SyscallError = -1
	ErrNotFound         SyscallError = -2
	ErrPermissionDenied SyscallError = -3
	ErrAlreadyExists    SyscallError = -4
	ErrNotADirectory    SyscallError = -5
	ErrIsADirectory     SyscallError = -6
	ErrInvalidArgument  SyscallError = -7
	ErrNoSpace          SyscallError = -8
	ErrIoError          SyscallError = -9
	ErrBadFd            SyscallError = -10
	ErrNotEmpty         SyscallError = -11
)

// Code returns the raw i32 value a guest binary sees.
func (e SyscallError) Code() int32 { return int32(e) }

// Error implements the error interface so host-side code plumbing a guest
// syscall result through Go's normal error conventions doesn't need a
// separate wrapper type.
func (e SyscallError) Error() string { return syscallErrorNames[e] }

var syscallErrorNames = map[SyscallError]string{
	ErrGeneric:          "generic error",
	ErrNotFound:         "not found",
	ErrPermissionDenied: "permission denied",
	ErrAlreadyExists:    "already exists",
	ErrNotADirectory:    "not a directory",
	ErrIsADirectory:     "is a directory",
	ErrInvalidArgument:  "invalid argument",
	ErrNoSpace:          "no space left",
	ErrIoError:          "i/o error",
	ErrBadFd:            "bad file descriptor",
	ErrNotEmpty:         "directory not empty",
}

// FromCode recovers a SyscallError from its wire code, if it names one of
// the known values.
func FromCode(code int32) (SyscallError, bool) {
	switch SyscallError(code) {
	case ErrGeneric, ErrNotFound, ErrPermissionDenied, ErrAlreadyExists,
		ErrNotADirectory, ErrIsADirectory, ErrInvalidArgument, ErrNoSpace,
		ErrIoError, ErrBadFd, ErrNotEmpty:
		return SyscallError(code), true
	default:
		return 0, false
	}
}

// StatSize is the wire size in bytes of a StatBuf.
const StatSize = 32

// StatBuf is the metadata the stat syscall writes into guest memory.
type StatBuf struct {
	Size         uint32
	IsDir        uint32
	ModifiedTime uint64
	CreatedTime  uint64
	Reserved     uint64
}

// ToBytes serializes the buffer little-endian, matching the 32-byte wire
// layout: [u32 size][u32 is_dir][u64 modified_time][u64 created_time][u64 reserved].
func (s StatBuf) ToBytes() [StatSize]byte {
	var buf [StatSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], s.Size)
	binary.LittleEndian.PutUint32(buf[4:8], s.IsDir)
	binary.LittleEndian.PutUint64(buf[8:16], s.ModifiedTime)
	binary.LittleEndian.PutUint64(buf[16:24], s.CreatedTime)
	binary.LittleEndian.PutUint64(buf[24:32], s.Reserved)
	return buf
}

// StatBufFromBytes deserializes a 32-byte little-endian stat buffer.
func StatBufFromBytes(buf [StatSize]byte) StatBuf {
	return StatBuf{
		Size:         binary.LittleEndian.Uint32(buf[0:4]),
		IsDir:        binary.LittleEndian.Uint32(buf[4:8]),
		ModifiedTime: binary.LittleEndian.Uint64(buf[8:16]),
		CreatedTime:  binary.LittleEndian.Uint64(buf[16:24]),
		Reserved:     binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// ArgLayout computes where a command's argv strings and pointer array
// land in the guest's linear memory: [strings][argv pointers][NULL].
// Strings are packed back-to-back with no padding between them or
// between the string block and the pointer array; this is the only
// layout that makes ArgLayout.Write's own offsets self-consistent.
type ArgLayout struct {
	StringsSize    int
	ArgvSize       int
	StringOffsets  []int
}

// NewArgLayout computes the layout for args.
func NewArgLayout(args []string) ArgLayout {
	offsets := make([]int, len(args))
	size := 0
	for i, a := range args {
		offsets[i] = size
		size += len(a) + 1 // null terminator
	}
	return ArgLayout{
		StringsSize:   size,
		ArgvSize:      (len(args) + 1) * 4, // one u32 pointer per arg, plus NULL
		StringOffsets: offsets,
	}
}

// TotalSize is the number of bytes the layout occupies: strings plus the
// pointer array.
func (l ArgLayout) TotalSize() int { return l.StringsSize + l.ArgvSize }

// Write serializes args into buf starting at baseAddr, returning the
// argv pointer (baseAddr + the offset of the pointer array) that main's
// second argument should receive.
func (l ArgLayout) Write(args []string, baseAddr uint32, buf []byte) uint32 {
	if len(buf) < l.TotalSize() {
		panic("abi: buffer too small for ArgLayout")
	}
	for i, a := range args {
		off := l.StringOffsets[i]
		copy(buf[off:off+len(a)], a)
		buf[off+len(a)] = 0
	}

	argvOffset := l.StringsSize
	for i := range args {
		ptr := baseAddr + uint32(l.StringOffsets[i])
		arrOffset := argvOffset + i*4
		binary.LittleEndian.PutUint32(buf[arrOffset:arrOffset+4], ptr)
	}
	nullOffset := argvOffset + len(args)*4
	binary.LittleEndian.PutUint32(buf[nullOffset:nullOffset+4], 0)

	return baseAddr + uint32(argvOffset)
}
