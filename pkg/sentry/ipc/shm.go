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

package ipc

import "errors"

// Errors returned by shared-memory operations.
var (
	ErrShmNotFound  = errors.New("shm: segment not found")
	ErrShmNotAttached = errors.New("shm: not attached by that process")
)

// ShmID identifies a shared-memory segment within a ShmManager.
type ShmID uint64

// Segment is a named, reference-counted shared-memory region. A segment
// whose key is non-empty is "persistent": it survives its last detach
// instead of being freed, so a later process can attach to the same key
// and see the prior contents.
type Segment struct {
	ID        ShmID
	Key       string
	Size      int
	Data      []byte
	attachedBy map[uint64]int // pid -> attach count
}

// ShmManager owns every shared-memory segment in the system.
type ShmManager struct {
	segments map[ShmID]*Segment
	keyMap   map[string]ShmID
	nextID   uint64
}

// NewShmManager creates an empty manager.
func NewShmManager() *ShmManager {
	return &ShmManager{segments: make(map[ShmID]*Segment), keyMap: make(map[string]ShmID)}
}

// Get resolves key (possibly empty, for an anonymous/private segment) to
// a segment id, creating one of size bytes if key is new or empty.
func (m *ShmManager) Get(key string, size int) ShmID {
	if key != "" {
		if id, ok := m.keyMap[key]; ok {
			return id
		}
	}
	m.nextID++
	id := ShmID(m.nextID)
	m.segments[id] = &Segment{
		ID:         id,
		Key:        key,
		Size:       size,
		Data:       make([]byte, size),
		attachedBy: make(map[uint64]int),
	}
	if key != "" {
		m.keyMap[key] = id
	}
	return id
}

// Attach increments pid's attach count on id.
func (m *ShmManager) Attach(id ShmID, pid uint64) (*Segment, error) {
	seg, ok := m.segments[id]
	if !ok {
		return nil, ErrShmNotFound
	}
	seg.attachedBy[pid]++
	return seg, nil
}

// Detach decrements pid's attach count on id. When the segment's total
// attach count across every process reaches zero, it is freed unless its
// key is non-empty (persistent), in which case its Data is kept for a
// future Get/Attach on the same key.
func (m *ShmManager) Detach(id ShmID, pid uint64) error {
	seg, ok := m.segments[id]
	if !ok {
		return ErrShmNotFound
	}
	if seg.attachedBy[pid] == 0 {
		return ErrShmNotAttached
	}
	seg.attachedBy[pid]--
	if seg.attachedBy[pid] == 0 {
		delete(seg.attachedBy, pid)
	}
	if m.totalAttached(seg) == 0 && seg.Key == "" {
		delete(m.segments, id)
	}
	return nil
}

func (m *ShmManager) totalAttached(seg *Segment) int {
	total := 0
	for _, n := range seg.attachedBy {
		total += n
	}
	return total
}

// ReleaseAll detaches every segment pid still holds, called from process
// exit, applying the same persistence rule as Detach.
func (m *ShmManager) ReleaseAll(pid uint64) {
	for id, seg := range m.segments {
		if _, ok := seg.attachedBy[pid]; !ok {
			continue
		}
		delete(seg.attachedBy, pid)
		if m.totalAttached(seg) == 0 && seg.Key == "" {
			delete(m.segments, id)
		}
	}
}
