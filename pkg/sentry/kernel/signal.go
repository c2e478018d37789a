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

import "fmt"

// Signal is a small, deliberately non-POSIX signal number. The mapping
// favors a gap-free 1-12 range over bug-for-bug POSIX compatibility.
type Signal uint8

// Signal numbers, in the gap-free 1-12 range described on Signal above;
// they do not follow POSIX numbering.
const (
	SIGTERM Signal = 1
	SIGKILL Signal = 2
	SIGSTOP Signal = 3
	SIGCONT Signal = 4
	SIGINT  Signal = 5
	SIGQUIT Signal = 6
	SIGHUP  Signal = 7
	SIGUSR1 Signal = 8
	SIGUSR2 Signal = 9
	SIGCHLD Signal = 10
	SIGALRM Signal = 11
	SIGPIPE Signal = 12
)

var signalNames = map[Signal]string{
	SIGTERM: "SIGTERM",
	SIGKILL: "SIGKILL",
	SIGSTOP: "SIGSTOP",
	SIGCONT: "SIGCONT",
	SIGINT:  "SIGINT",
	SIGQUIT: "SIGQUIT",
	SIGHUP:  "SIGHUP",
	SIGUSR1: "SIGUSR1",
	SIGUSR2: "SIGUSR2",
	SIGCHLD: "SIGCHLD",
	SIGALRM: "SIGALRM",
	SIGPIPE: "SIGPIPE",
}

// String implements fmt.Stringer.
func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return fmt.Sprintf("signal(%d)", s)
}

// SignalFromNum validates a raw signal number from a guest syscall.
func SignalFromNum(n uint8) (Signal, bool) {
	s := Signal(n)
	_, ok := signalNames[s]
	return s, ok
}

// CanCatch reports whether a signal's disposition may be overridden or
// blocked. SIGKILL and SIGSTOP never can.
func (s Signal) CanCatch() bool {
	return s != SIGKILL && s != SIGSTOP
}

// SignalAction is the effect a resolved signal has on its target process.
type SignalAction int

const (
	// ActionDefault defers to the signal's built-in default action.
	ActionDefault SignalAction = iota
	ActionIgnore
	ActionTerminate
	ActionKill
	ActionStop
	ActionContinue
	// ActionHandle marks a signal as caught by a guest handler.
	// ResolveAction returns it as set; no guest handler is invoked, since
	// the guest ABI carries no handler-invocation mechanism (see
	// SPEC_FULL.md §1 / §9 open question).
	ActionHandle
)

// DefaultAction returns the built-in action for a signal when its
// disposition has not been overridden.
func (s Signal) DefaultAction() SignalAction {
	switch s {
	case SIGTERM, SIGINT, SIGQUIT, SIGHUP, SIGPIPE:
		return ActionTerminate
	case SIGKILL:
		return ActionKill
	case SIGSTOP:
		return ActionStop
	case SIGCONT:
		return ActionContinue
	case SIGUSR1, SIGUSR2, SIGCHLD, SIGALRM:
		return ActionIgnore
	default:
		return ActionTerminate
	}
}

// SignalError reports a failure in a signal-subsystem operation.
type SignalError struct {
	Op     string
	Signal Signal
	Msg    string
}

func (e *SignalError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Signal, e.Msg)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Signal)
}

func errCannotCatch(s Signal) error { return &SignalError{Op: "cannot catch", Signal: s} }
func errCannotBlock(s Signal) error { return &SignalError{Op: "cannot block", Signal: s} }

// Disposition maps signals to the action a process has chosen for them.
// The zero value has every signal at ActionDefault.
type Disposition struct {
	actions map[Signal]SignalAction
}

// NewDisposition returns an empty disposition table (every signal Default).
func NewDisposition() *Disposition {
	return &Disposition{actions: make(map[Signal]SignalAction)}
}

// Action returns the configured action for s, or ActionDefault if unset.
func (d *Disposition) Action(s Signal) SignalAction {
	if a, ok := d.actions[s]; ok {
		return a
	}
	return ActionDefault
}

// SetAction overrides the action taken for s. SIGKILL/SIGSTOP reject any
// non-default action.
func (d *Disposition) SetAction(s Signal, a SignalAction) error {
	if !s.CanCatch() && a != ActionDefault {
		return errCannotCatch(s)
	}
	d.actions[s] = a
	return nil
}

// Reset restores s to ActionDefault.
func (d *Disposition) Reset(s Signal) { delete(d.actions, s) }

// ResetAll restores every signal to ActionDefault.
func (d *Disposition) ResetAll() { d.actions = make(map[Signal]SignalAction) }

// ResolveAction returns the effective action for s under d: its override
// if set to anything but Default, else the signal's built-in default.
func ResolveAction(s Signal, d *Disposition) SignalAction {
	if a := d.Action(s); a != ActionDefault {
		return a
	}
	return s.DefaultAction()
}

// ProcessSignals is the per-process pending/blocked signal state: a FIFO
// pending queue with SIGKILL/SIGSTOP priority pull-first, a blocked set,
// and the disposition table consulted at delivery time.
type ProcessSignals struct {
	Disposition *Disposition

	pending []Signal
	blocked map[Signal]bool
	stopped bool
}

// NewProcessSignals creates empty per-process signal state.
func NewProcessSignals() *ProcessSignals {
	return &ProcessSignals{
		Disposition: NewDisposition(),
		blocked:     make(map[Signal]bool),
	}
}

// Send enqueues s for delivery. SIGCONT clears the stopped flag and
// discards any pending SIGSTOP. Duplicate pending signals are coalesced,
// except SIGKILL, which always queues again.
func (p *ProcessSignals) Send(s Signal) {
	if s == SIGCONT {
		p.stopped = false
		p.pending = removeSignal(p.pending, SIGSTOP)
	}

	if s != SIGKILL && containsSignal(p.pending, s) {
		return
	}

	p.pending = append(p.pending, s)
}

// NextPending dequeues the next deliverable signal: SIGKILL first, then
// SIGSTOP, then the first non-blocked signal in FIFO order. Returns false
// if nothing is deliverable.
func (p *ProcessSignals) NextPending() (Signal, bool) {
	if i := indexOfSignal(p.pending, SIGKILL); i >= 0 {
		return p.takeAt(i), true
	}
	if i := indexOfSignal(p.pending, SIGSTOP); i >= 0 {
		return p.takeAt(i), true
	}
	for i, s := range p.pending {
		if !p.blocked[s] {
			return p.takeAt(i), true
		}
	}
	return 0, false
}

func (p *ProcessSignals) takeAt(i int) Signal {
	s := p.pending[i]
	p.pending = append(p.pending[:i:i], p.pending[i+1:]...)
	return s
}

// HasPending reports whether any signal is currently deliverable: blocked
// signals don't count unless they are uncatchable (which can't actually
// happen, since SIGKILL/SIGSTOP can never be blocked, but the check
// mirrors the invariant directly).
func (p *ProcessSignals) HasPending() bool {
	for _, s := range p.pending {
		if !p.blocked[s] || !s.CanCatch() {
			return true
		}
	}
	return false
}

// Block masks s so it stays pending but undelivered until unblocked.
// SIGKILL/SIGSTOP cannot be blocked.
func (p *ProcessSignals) Block(s Signal) error {
	if !s.CanCatch() {
		return errCannotBlock(s)
	}
	p.blocked[s] = true
	return nil
}

// Unblock removes s's block, if any.
func (p *ProcessSignals) Unblock(s Signal) { delete(p.blocked, s) }

// IsBlocked reports whether s is currently blocked.
func (p *ProcessSignals) IsBlocked(s Signal) bool { return p.blocked[s] }

// IsStopped reports whether the process is currently stopped.
func (p *ProcessSignals) IsStopped() bool { return p.stopped }

// Stop marks the process stopped.
func (p *ProcessSignals) Stop() { p.stopped = true }

// Continue clears the stopped flag.
func (p *ProcessSignals) Continue() { p.stopped = false }

// PendingCount returns the number of signals currently queued.
func (p *ProcessSignals) PendingCount() int { return len(p.pending) }

func containsSignal(ss []Signal, s Signal) bool { return indexOfSignal(ss, s) >= 0 }

func indexOfSignal(ss []Signal, s Signal) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

func removeSignal(ss []Signal, s Signal) []Signal {
	out := ss[:0:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
