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

// Errors returned by semaphore operations.
var (
	ErrSemInvalidNum = errors.New("semaphore: invalid semaphore number")
	ErrSemInvalidArg = errors.New("semaphore: invalid argument")
	ErrSemNotFound   = errors.New("semaphore: set not found")
	ErrSemTooMany    = errors.New("semaphore: too many semaphores in one set")
)

// MaxSemsPerSet bounds how large a single semaphore set may be.
const MaxSemsPerSet = 250

// SemID identifies a semaphore set within a SemaphoreManager.
type SemID uint32

// SemOpResult is the outcome of a single semop call.
type SemOpResult int

const (
	SemCompleted SemOpResult = iota
	SemWouldBlock
)

type semaphore struct {
	value        int32
	waitingInc   uint32
	waitingZero  uint32
	otime        int64
	pid          uint32
}

// SemSetStats mirrors semctl(IPC_STAT).
type SemSetStats struct {
	NSems      int
	UID, GID   uint32
	CTime      int64
	OTime      int64
}

// SemaphoreSet is a fixed-size array of semaphores, each independently
// operated on by index.
type SemaphoreSet struct {
	ID       SemID
	UID, GID uint32
	CTime    int64
	OTime    int64

	sems []semaphore
}

// NewSemaphoreSet creates a set of n semaphores, each initialized to 0.
func NewSemaphoreSet(id SemID, n int, uid, gid uint32, now int64) *SemaphoreSet {
	return &SemaphoreSet{ID: id, UID: uid, GID: gid, CTime: now, sems: make([]semaphore, n)}
}

// Len returns the number of semaphores in the set.
func (s *SemaphoreSet) Len() int { return len(s.sems) }

// Getval returns one semaphore's current value.
func (s *SemaphoreSet) Getval(n int) (int32, error) {
	if n < 0 || n >= len(s.sems) {
		return 0, ErrSemInvalidNum
	}
	return s.sems[n].value, nil
}

// Setval pins one semaphore's value.
func (s *SemaphoreSet) Setval(n int, value int32, pid uint32, now int64) error {
	if n < 0 || n >= len(s.sems) {
		return ErrSemInvalidNum
	}
	s.sems[n].value = value
	s.sems[n].pid = pid
	s.sems[n].otime = now
	s.OTime = now
	return nil
}

// Getall returns every semaphore's current value, in index order.
func (s *SemaphoreSet) Getall() []int32 {
	out := make([]int32, len(s.sems))
	for i, sem := range s.sems {
		out[i] = sem.value
	}
	return out
}

// Setall bulk-assigns every semaphore's value; len(values) must equal
// Len().
func (s *SemaphoreSet) Setall(values []int32, pid uint32, now int64) error {
	if len(values) != len(s.sems) {
		return ErrSemInvalidArg
	}
	for i, v := range values {
		s.sems[i].value = v
		s.sems[i].pid = pid
		s.sems[i].otime = now
	}
	s.OTime = now
	return nil
}

// Semop performs one semaphore operation: op > 0 adds (always Completes);
// op < 0 subtracts if the value is large enough, else WouldBlock and
// increments the waiting-for-increase counter; op == 0 completes iff the
// value is already zero, else WouldBlock and increments the
// waiting-for-zero counter.
func (s *SemaphoreSet) Semop(n int, op int32, pid uint32, now int64) (SemOpResult, error) {
	if n < 0 || n >= len(s.sems) {
		return SemWouldBlock, ErrSemInvalidNum
	}
	sem := &s.sems[n]

	switch {
	case op > 0:
		sem.value += op
		sem.pid = pid
		sem.otime = now
		s.OTime = now
		return SemCompleted, nil
	case op < 0:
		abs := -op
		if sem.value >= abs {
			sem.value -= abs
			sem.pid = pid
			sem.otime = now
			s.OTime = now
			return SemCompleted, nil
		}
		sem.waitingInc++
		return SemWouldBlock, nil
	default:
		if sem.value == 0 {
			sem.pid = pid
			sem.otime = now
			s.OTime = now
			return SemCompleted, nil
		}
		sem.waitingZero++
		return SemWouldBlock, nil
	}
}

// Getpid returns the pid of the last operation on a semaphore.
func (s *SemaphoreSet) Getpid(n int) (uint32, error) {
	if n < 0 || n >= len(s.sems) {
		return 0, ErrSemInvalidNum
	}
	return s.sems[n].pid, nil
}

// Getncnt returns the number of processes waiting for the semaphore's
// value to increase.
func (s *SemaphoreSet) Getncnt(n int) (uint32, error) {
	if n < 0 || n >= len(s.sems) {
		return 0, ErrSemInvalidNum
	}
	return s.sems[n].waitingInc, nil
}

// Getzcnt returns the number of processes waiting for the semaphore's
// value to become zero.
func (s *SemaphoreSet) Getzcnt(n int) (uint32, error) {
	if n < 0 || n >= len(s.sems) {
		return 0, ErrSemInvalidNum
	}
	return s.sems[n].waitingZero, nil
}

// SemaphoreManager owns every semaphore set in the system.
type SemaphoreManager struct {
	sets   map[SemID]*SemaphoreSet
	keyMap map[int32]SemID
	nextID uint32
}

// NewSemaphoreManager creates an empty manager.
func NewSemaphoreManager() *SemaphoreManager {
	return &SemaphoreManager{sets: make(map[SemID]*SemaphoreSet), keyMap: make(map[int32]SemID), nextID: 1}
}

// Semget resolves key to a set id, creating an n-semaphore set if key < 0
// (always private) or if create is set and key is unmapped.
func (m *SemaphoreManager) Semget(key int32, n int, uid, gid uint32, create bool, now int64) (SemID, error) {
	if n > MaxSemsPerSet {
		return 0, ErrSemTooMany
	}
	if key < 0 {
		return m.newSet(n, uid, gid, now, nil), nil
	}
	if id, ok := m.keyMap[key]; ok {
		return id, nil
	}
	if !create {
		return 0, ErrSemNotFound
	}
	return m.newSet(n, uid, gid, now, &key), nil
}

func (m *SemaphoreManager) newSet(n int, uid, gid uint32, now int64, key *int32) SemID {
	id := SemID(m.nextID)
	m.nextID++
	m.sets[id] = NewSemaphoreSet(id, n, uid, gid, now)
	if key != nil {
		m.keyMap[*key] = id
	}
	return id
}

// Semop performs one operation against a set looked up by id.
func (m *SemaphoreManager) Semop(id SemID, n int, op int32, pid uint32, now int64) (SemOpResult, error) {
	set, ok := m.sets[id]
	if !ok {
		return SemWouldBlock, ErrSemNotFound
	}
	return set.Semop(n, op, pid, now)
}

// Get returns the set for introspection/ctl helpers beyond Semop.
func (m *SemaphoreManager) Get(id SemID) (*SemaphoreSet, error) {
	set, ok := m.sets[id]
	if !ok {
		return nil, ErrSemNotFound
	}
	return set, nil
}

// SemctlStat returns id's stats snapshot.
func (m *SemaphoreManager) SemctlStat(id SemID) (SemSetStats, error) {
	set, ok := m.sets[id]
	if !ok {
		return SemSetStats{}, ErrSemNotFound
	}
	return SemSetStats{NSems: set.Len(), UID: set.UID, GID: set.GID, CTime: set.CTime, OTime: set.OTime}, nil
}

// Remove destroys the set named by id and any key mapping to it.
func (m *SemaphoreManager) Remove(id SemID) error {
	if _, ok := m.sets[id]; !ok {
		return ErrSemNotFound
	}
	delete(m.sets, id)
	for k, v := range m.keyMap {
		if v == id {
			delete(m.keyMap, k)
		}
	}
	return nil
}
