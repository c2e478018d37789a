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

// Package kernel implements the cooperative task executor, process table,
// and signal subsystem: the part of the emulated kernel that runs atop a
// host substrate with no preemption and no native threads.
package kernel

// TaskID identifies a schedulable unit inside the Executor. Many tasks per
// process are permitted, though the kernel itself runs one primary task
// per process by default.
type TaskID uint64

// Status is the outcome of a single Task.Run invocation.
type Status int

const (
	// Yielded means the task voluntarily gave up the CPU but has more
	// work; it goes back on the run queue immediately.
	Yielded Status = iota
	// Blocked means the task is suspended on a WaitSource until woken.
	Blocked
	// Done means the task has completed and will never run again.
	Done
)

// WaitKind names the category of event a blocked task is waiting on.
type WaitKind int

const (
	WaitFD WaitKind = iota
	WaitTimer
	WaitLock
	WaitSem
	WaitMsgQueue
	WaitSignal
	WaitChild
	WaitCustom
)

// WaitSource identifies what a blocked task is waiting for. Key's meaning
// depends on Kind (an fd number, a timer id, a lock path hash, etc); it is
// opaque to the Executor, which only uses it to index waiters.
type WaitSource struct {
	Kind WaitKind
	Key  uint64
}

// Outcome is returned by Runner.Run to tell the Executor what to do next.
type Outcome struct {
	Status Status
	Wait   WaitSource // meaningful iff Status == Blocked
}

// Runner is the resumable body of a task. Run is called repeatedly by the
// Executor; implementations must track their own progress internally
// (there is no native coroutine support) and resume from where the
// previous call left off.
type Runner interface {
	Run(now int64) Outcome
}

// ReleaseFunc is a cleanup hook registered by a task for a resource it
// acquired. Hooks run in LIFO order when the task completes or is
// cancelled, mirroring scoped acquisition on every exit path.
type ReleaseFunc func()

type taskEntry struct {
	id       TaskID
	runner   Runner
	priority int
	seq      uint64
	wait     WaitSource
	hooks    []ReleaseFunc
}
