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

package lock

import (
	"errors"
	"testing"
)

func TestFlockSharedAllowsMultipleHolders(t *testing.T) {
	m := NewManager()
	if err := m.Flock("/test", 1, Shared, false); err != nil {
		t.Fatalf("pid1 shared: %v", err)
	}
	if err := m.Flock("/test", 2, Shared, false); err != nil {
		t.Fatalf("pid2 shared: %v", err)
	}
}

func TestFlockExclusiveConflict(t *testing.T) {
	m := NewManager()
	if err := m.Flock("/a", 1, Exclusive, false); err != nil {
		t.Fatalf("pid1 exclusive: %v", err)
	}
	if err := m.Flock("/a", 2, Exclusive, false); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("pid2 exclusive = %v, want ErrWouldBlock", err)
	}
	if err := m.Flock("/a", 1, Unlock, false); err != nil {
		t.Fatalf("pid1 unlock: %v", err)
	}
	if err := m.Flock("/a", 2, Exclusive, false); err != nil {
		t.Fatalf("pid2 exclusive after unlock: %v", err)
	}
}

func TestFlockSameProcessUpgrade(t *testing.T) {
	m := NewManager()
	if err := m.Flock("/test", 1, Shared, false); err != nil {
		t.Fatalf("shared: %v", err)
	}
	if err := m.Flock("/test", 1, Exclusive, false); err != nil {
		t.Fatalf("upgrade to exclusive: %v", err)
	}
}

func TestFcntlRangeOverlap(t *testing.T) {
	m := NewManager()
	lock1 := RangeLock{Pid: 1, Type: Exclusive, Start: 0, Len: 100}
	lock2 := RangeLock{Pid: 2, Type: Exclusive, Start: 50, Len: 100}

	if err := m.FcntlLock("/test", 1, lock1, false); err != nil {
		t.Fatalf("lock1: %v", err)
	}
	if err := m.FcntlLock("/test", 2, lock2, false); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("overlapping lock2 = %v, want ErrWouldBlock", err)
	}
}

func TestFcntlRangeNoOverlap(t *testing.T) {
	m := NewManager()
	lock1 := RangeLock{Pid: 1, Type: Exclusive, Start: 0, Len: 100}
	lock2 := RangeLock{Pid: 2, Type: Exclusive, Start: 200, Len: 100}

	if err := m.FcntlLock("/test", 1, lock1, false); err != nil {
		t.Fatalf("lock1: %v", err)
	}
	if err := m.FcntlLock("/test", 2, lock2, false); err != nil {
		t.Fatalf("non-overlapping lock2: %v", err)
	}
}

func TestReleaseAllFreesEveryPath(t *testing.T) {
	m := NewManager()
	m.Flock("/a", 1, Exclusive, false)
	m.Flock("/b", 1, Exclusive, false)

	m.ReleaseAll(1)

	if err := m.Flock("/a", 2, Exclusive, false); err != nil {
		t.Fatalf("/a after release: %v", err)
	}
	if err := m.Flock("/b", 2, Exclusive, false); err != nil {
		t.Fatalf("/b after release: %v", err)
	}
}

func TestGetLockProbeDoesNotAcquire(t *testing.T) {
	m := NewManager()
	held := RangeLock{Pid: 1, Type: Exclusive, Start: 0, Len: 10}
	m.FcntlLock("/test", 1, held, false)

	probe := RangeLock{Pid: 2, Type: Shared, Start: 5, Len: 10}
	conflict, found := m.GetLock("/test", 2, probe)
	if !found || conflict.Pid != 1 {
		t.Fatalf("GetLock = %v, %v; want pid 1's lock", conflict, found)
	}

	// The probe must not have acquired anything.
	if err := m.FcntlLock("/test", 2, probe, false); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("lock after probe = %v, want still ErrWouldBlock", err)
	}
}

func TestOnReleaseNotifiesPathKey(t *testing.T) {
	m := NewManager()
	var notified []uint64
	m.OnRelease(func(k uint64) { notified = append(notified, k) })

	m.Flock("/a", 1, Exclusive, false)
	m.Flock("/a", 1, Unlock, false)

	if len(notified) != 1 || notified[0] != PathKey("/a") {
		t.Fatalf("notified = %v, want [%d]", notified, PathKey("/a"))
	}
}
