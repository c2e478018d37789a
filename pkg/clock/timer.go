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

package clock

import "github.com/google/btree"

// TimerID uniquely identifies a scheduled timer within a Wheel.
type TimerID uint64

// State is the lifecycle state of a Timer.
type State int

const (
	// Pending timers are still waiting to fire.
	Pending State = iota
	// Fired timers have delivered their wake and, if one-shot, are gone.
	Fired
	// Cancelled timers were cancelled before firing.
	Cancelled
)

// Timer is a single scheduled wake, one-shot or repeating.
type Timer struct {
	ID       TimerID
	Deadline int64 // monotonic ms
	WakeTask uint64
	HasWake  bool
	State    State
	Interval int64 // ms; zero means one-shot
	Repeats  bool
}

// entry is the btree.Item ordering timers by (deadline, sequence); the
// sequence number breaks ties in insertion order, satisfying the ordering
// rule in spec.md §4.A.
type entry struct {
	deadline int64
	seq      uint64
	id       TimerID
}

func (e *entry) Less(than btree.Item) bool {
	o := than.(*entry)
	if e.deadline != o.deadline {
		return e.deadline < o.deadline
	}
	return e.seq < o.seq
}

// Wheel is a min-heap of pending timers keyed by deadline, implemented as
// a B-tree ordered by (deadline, insertion sequence) so pops are O(log n)
// and ties resolve in FIFO order.
type Wheel struct {
	tree    *btree.BTree
	entries map[TimerID]*entry
	timers  map[TimerID]*Timer
	nextID  uint64
	nextSeq uint64
}

// NewWheel creates an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{
		tree:    btree.New(32),
		entries: make(map[TimerID]*entry),
		timers:  make(map[TimerID]*Timer),
	}
}

func (w *Wheel) alloc(now, relDeadline int64, wakeTask uint64, hasWake bool, interval int64, repeats bool) TimerID {
	w.nextID++
	id := TimerID(w.nextID)
	w.nextSeq++
	seq := w.nextSeq
	t := &Timer{
		ID:       id,
		Deadline: relDeadline,
		WakeTask: wakeTask,
		HasWake:  hasWake,
		State:    Pending,
		Interval: interval,
		Repeats:  repeats,
	}
	e := &entry{deadline: relDeadline, seq: seq, id: id}
	w.timers[id] = t
	w.entries[id] = e
	w.tree.ReplaceOrInsert(e)
	return id
}

// Schedule inserts a one-shot timer firing delayMs after now.
func (w *Wheel) Schedule(now, delayMs int64, wakeTask uint64) TimerID {
	return w.alloc(now, now+delayMs, wakeTask, true, 0, false)
}

// ScheduleSilent is like Schedule but with no task to wake (a pure
// deadline marker, used e.g. by sleep-less timeout probes).
func (w *Wheel) ScheduleSilent(now, delayMs int64) TimerID {
	return w.alloc(now, now+delayMs, 0, false, 0, false)
}

// ScheduleInterval inserts a repeating timer, first firing periodMs after
// now and thereafter every periodMs.
func (w *Wheel) ScheduleInterval(now, periodMs int64, wakeTask uint64) TimerID {
	return w.alloc(now, now+periodMs, wakeTask, true, periodMs, true)
}

// Cancel marks a timer Cancelled. It returns true iff the timer was
// previously Pending; a cancelled interval timer never reschedules.
func (w *Wheel) Cancel(id TimerID) bool {
	t, ok := w.timers[id]
	if !ok || t.State != Pending {
		return false
	}
	t.State = Cancelled
	if e, ok := w.entries[id]; ok {
		w.tree.Delete(e)
		delete(w.entries, id)
	}
	return true
}

// Tick pops every timer whose deadline is <= now, firing and (for
// intervals) rescheduling each still-Pending entry, and returns the set of
// tasks to wake. Cancelled or already-fired entries encountered in the
// heap are discarded silently.
func (w *Wheel) Tick(now int64) []uint64 {
	var woken []uint64
	var toReschedule []*Timer

	for {
		min := w.tree.Min()
		if min == nil {
			break
		}
		e := min.(*entry)
		if e.deadline > now {
			break
		}
		w.tree.DeleteMin()
		delete(w.entries, e.id)

		t, ok := w.timers[e.id]
		if !ok || t.State != Pending {
			continue
		}
		t.State = Fired
		if t.HasWake {
			woken = append(woken, t.WakeTask)
		}
		if t.Repeats {
			t.Deadline = now + t.Interval
			t.State = Pending
			toReschedule = append(toReschedule, t)
		} else {
			delete(w.timers, e.id)
		}
	}

	for _, t := range toReschedule {
		w.nextSeq++
		ne := &entry{deadline: t.Deadline, seq: w.nextSeq, id: t.ID}
		w.entries[t.ID] = ne
		w.tree.ReplaceOrInsert(ne)
	}

	return woken
}

// TimeUntilNext returns the number of milliseconds until the next pending
// timer fires, floored at zero, or false if no timer is pending.
func (w *Wheel) TimeUntilNext(now int64) (int64, bool) {
	min := w.tree.Min()
	if min == nil {
		return 0, false
	}
	e := min.(*entry)
	d := e.deadline - now
	if d < 0 {
		d = 0
	}
	return d, true
}

// PendingCount returns the number of timers currently Pending.
func (w *Wheel) PendingCount() int {
	return w.tree.Len()
}

// Get returns the timer's current state.
func (w *Wheel) Get(id TimerID) (Timer, bool) {
	t, ok := w.timers[id]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// IsPending reports whether id exists and is still Pending.
func (w *Wheel) IsPending(id TimerID) bool {
	t, ok := w.timers[id]
	return ok && t.State == Pending
}
