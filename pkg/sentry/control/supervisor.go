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

// Package control implements the init/service supervisor: PID 1's view of
// the world, tracking service configuration, state, target transitions,
// and zombie reaping.
package control

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"axeberg.dev/os/pkg/log"
)

// ServiceState is a service's position in its start/stop lifecycle.
type ServiceState int

const (
	Stopped ServiceState = iota
	Starting
	Running
	Stopping
	Failed
)

func (s ServiceState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ServiceType distinguishes one-shot commands from long-running daemons.
// Forking is accepted for config compatibility but treated identically to
// Simple: there is no fork(2) in this kernel's process model.
type ServiceType int

const (
	Oneshot ServiceType = iota
	Simple
	Forking
)

// RestartPolicy governs what ReapZombies does when a service's backing
// process exits.
type RestartPolicy int

const (
	RestartNo RestartPolicy = iota
	RestartOnFailure
	RestartAlways
)

// ServiceConfig is a unit's static definition.
type ServiceConfig struct {
	Name             string
	Description      string
	ExecStart        string
	ExecStop         string
	HasExecStop      bool
	Type             ServiceType
	After            []string
	WantedBy         []string
	Restart          RestartPolicy
	Environment      map[string]string
	WorkingDirectory string
}

// NewServiceConfig returns a zero-value config for name with an empty
// environment map, matching what every builtin and caller-registered
// service starts from.
func NewServiceConfig(name string) ServiceConfig {
	return ServiceConfig{Name: name, Type: Simple, Restart: RestartNo, Environment: map[string]string{}}
}

// Service is one registered unit's live state.
type Service struct {
	Config       ServiceConfig
	State        ServiceState
	PID          uint64
	HasPID       bool
	ExitCode     int
	RestartCount uint32
}

// ServiceStatus is the read-only view returned by GetService/ListServices.
type ServiceStatus struct {
	Name         string
	Description  string
	State        ServiceState
	PID          uint64
	HasPID       bool
	ExitCode     int
	RestartCount uint32
}

func (s *Service) status() ServiceStatus {
	return ServiceStatus{
		Name:         s.Config.Name,
		Description:  s.Config.Description,
		State:        s.State,
		PID:          s.PID,
		HasPID:       s.HasPID,
		ExitCode:     s.ExitCode,
		RestartCount: s.RestartCount,
	}
}

// Target is a runlevel a supervisor can be asked to switch to.
type Target int

const (
	TargetRescue Target = iota
	TargetMultiUser
	TargetGraphical
	TargetReboot
	TargetPoweroff
)

var targetNames = map[Target]string{
	TargetRescue:    "rescue.target",
	TargetMultiUser: "multi-user.target",
	TargetGraphical: "graphical.target",
	TargetReboot:    "reboot.target",
	TargetPoweroff:  "poweroff.target",
}

// String returns the canonical "<name>.target" form.
func (t Target) String() string { return targetNames[t] }

// ParseTarget accepts either the canonical "<name>.target" form or the
// bare name.
func ParseTarget(s string) (Target, bool) {
	switch s {
	case "rescue", "rescue.target":
		return TargetRescue, true
	case "multi-user", "multi-user.target":
		return TargetMultiUser, true
	case "graphical", "graphical.target":
		return TargetGraphical, true
	case "reboot", "reboot.target":
		return TargetReboot, true
	case "poweroff", "poweroff.target":
		return TargetPoweroff, true
	default:
		return 0, false
	}
}

// ErrServiceNotFound is returned by any operation naming an unregistered
// service.
var ErrServiceNotFound = fmt.Errorf("control: service not found")

// ErrDependencyNotRunning is returned by StartService when a direct After
// dependency isn't already Running.
var ErrDependencyNotRunning = fmt.Errorf("control: dependency not running")

// ErrDependencyCycle is returned by SetTarget when the After graph among
// the services a target wants cannot be topologically ordered.
var ErrDependencyCycle = fmt.Errorf("control: dependency cycle")

// Spawner starts the process backing a service and returns its pid. The
// supervisor itself holds no kernel reference; the caller wires this to
// its process table and guest loader.
type Spawner func(cfg ServiceConfig) (uint64, error)

// Supervisor is PID 1's service registry and target state machine.
type Supervisor struct {
	services     map[string]*Service
	target       Target
	hostname     string
	bootTime     int64
	shuttingDown bool
	spawn        Spawner
	log          *log.Logger
}

// NewSupervisor creates a supervisor with the builtin shell/tty services
// registered, using spawn to actually start a service's backing process.
func NewSupervisor(spawn Spawner) *Supervisor {
	s := &Supervisor{
		services: make(map[string]*Service),
		target:   TargetMultiUser,
		hostname: "axeberg",
		spawn:    spawn,
		log:      log.Default().With("subsys", "control"),
	}
	s.registerBuiltinServices()
	return s
}

func (s *Supervisor) registerBuiltinServices() {
	shell := NewServiceConfig("shell")
	shell.Description = "Interactive Shell"
	shell.ExecStart = "/bin/sh"
	shell.WantedBy = []string{TargetMultiUser.String()}
	s.RegisterService(shell)

	tty := NewServiceConfig("tty")
	tty.Description = "Virtual Console"
	tty.ExecStart = "/sbin/agetty"
	tty.After = []string{"shell"}
	tty.WantedBy = []string{TargetMultiUser.String()}
	s.RegisterService(tty)
}

// RegisterService adds or replaces a unit definition. A service already
// running under the old definition keeps running; only its config swaps.
func (s *Supervisor) RegisterService(cfg ServiceConfig) {
	if existing, ok := s.services[cfg.Name]; ok {
		existing.Config = cfg
		return
	}
	s.services[cfg.Name] = &Service{Config: cfg, State: Stopped}
}

// GetService returns name's current status.
func (s *Supervisor) GetService(name string) (ServiceStatus, bool) {
	svc, ok := s.services[name]
	if !ok {
		return ServiceStatus{}, false
	}
	return svc.status(), true
}

// ListServices returns every registered service's status, sorted by name
// for deterministic `axeberg ps`-style output.
func (s *Supervisor) ListServices() []ServiceStatus {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ServiceStatus, len(names))
	for i, name := range names {
		out[i] = s.services[name].status()
	}
	return out
}

// StartService starts name directly, failing if any of its direct After
// dependencies isn't already Running. It does not itself start those
// dependencies — SetTarget is what orders and starts a whole dependency
// chain; this method is the single-unit primitive `systemctl start` style
// callers and SetTarget's ordered loop both build on.
func (s *Supervisor) StartService(name string) error {
	svc, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if svc.State == Running {
		return nil
	}
	for _, dep := range svc.Config.After {
		depSvc, ok := s.services[dep]
		if ok && depSvc.State != Running {
			return fmt.Errorf("%w: %s needs %s", ErrDependencyNotRunning, name, dep)
		}
	}

	svc.State = Starting
	pid, err := s.spawn(svc.Config)
	if err != nil {
		svc.State = Failed
		return err
	}
	svc.PID = pid
	svc.HasPID = true
	svc.State = Running
	return nil
}

// StopService transitions name to Stopped. The caller is responsible for
// having already signaled the backing process; this only updates
// bookkeeping, mirroring the supervisor's role as a state tracker rather
// than a direct process controller.
func (s *Supervisor) StopService(name string) error {
	svc, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if svc.State == Stopped {
		return nil
	}
	svc.State = Stopping
	svc.State = Stopped
	svc.PID = 0
	svc.HasPID = false
	return nil
}

// RestartService stops then starts name.
func (s *Supervisor) RestartService(name string) error {
	if err := s.StopService(name); err != nil {
		return err
	}
	return s.StartService(name)
}

// EnableService adds multi-user.target to name's WantedBy list if absent.
func (s *Supervisor) EnableService(name string) error {
	svc, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	want := TargetMultiUser.String()
	for _, t := range svc.Config.WantedBy {
		if t == want {
			return nil
		}
	}
	svc.Config.WantedBy = append(svc.Config.WantedBy, want)
	return nil
}

// DisableService removes multi-user.target from name's WantedBy list.
func (s *Supervisor) DisableService(name string) error {
	svc, ok := s.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	want := TargetMultiUser.String()
	out := svc.Config.WantedBy[:0:0]
	for _, t := range svc.Config.WantedBy {
		if t != want {
			out = append(out, t)
		}
	}
	svc.Config.WantedBy = out
	return nil
}

// SetTarget switches to target. Reboot/Poweroff stop every service;
// any other target starts every service it wants, plus their transitive
// After dependencies, in dependency order (a topological sort), instead
// of the single unordered pass a naive "for each wanted service, try to
// start it" loop would take — that naive approach only works if the map
// iteration happens to visit dependencies first, which Go (like the
// HashMap it was ported from) never guarantees.
func (s *Supervisor) SetTarget(target Target) error {
	s.target = target

	if target == TargetReboot || target == TargetPoweroff {
		s.shuttingDown = true
		var errs *multierror.Error
		names := make([]string, 0, len(s.services))
		for name := range s.services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := s.StopService(name); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs.ErrorOrNil()
	}

	order, err := s.orderedStartSet(target)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, name := range order {
		if err := s.StartService(name); err != nil {
			s.log.Warningf("failed to start %s for %s: %v", name, target, err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// orderedStartSet computes the set of services target wants, expanded
// transitively through After edges to any registered dependency (even one
// that doesn't itself list target), and returns them topologically sorted
// so every dependency starts before its dependents.
func (s *Supervisor) orderedStartSet(target Target) ([]string, error) {
	wantStr := target.String()
	included := make(map[string]bool)

	var include func(name string)
	include = func(name string) {
		if included[name] {
			return
		}
		svc, ok := s.services[name]
		if !ok {
			return
		}
		included[name] = true
		for _, dep := range svc.Config.After {
			include(dep)
		}
	}

	for name, svc := range s.services {
		for _, t := range svc.Config.WantedBy {
			if t == wantStr {
				include(name)
				break
			}
		}
	}

	// Kahn's algorithm: edge dep -> name for every name's After dep.
	indegree := make(map[string]int, len(included))
	adj := make(map[string][]string, len(included))
	for name := range included {
		indegree[name] = 0
	}
	for name := range included {
		for _, dep := range s.services[name].Config.After {
			if !included[dep] {
				continue
			}
			adj[dep] = append(adj[dep], name)
			indegree[name]++
		}
	}

	var queue []string
	for name := range included {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		order = append(order, next)

		var newlyReady []string
		for _, dependent := range adj[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		sort.Strings(newlyReady)
		queue = append(queue, newlyReady...)
	}

	if len(order) != len(included) {
		return nil, ErrDependencyCycle
	}
	return order, nil
}

// Target returns the current runlevel.
func (s *Supervisor) Target() Target { return s.target }

// IsShuttingDown reports whether the last SetTarget call was Reboot or
// Poweroff.
func (s *Supervisor) IsShuttingDown() bool { return s.shuttingDown }

// Hostname returns the system hostname.
func (s *Supervisor) Hostname() string { return s.hostname }

// SetHostname updates the system hostname.
func (s *Supervisor) SetHostname(h string) { s.hostname = h }

// BootTime returns the recorded boot time (monotonic milliseconds).
func (s *Supervisor) BootTime() int64 { return s.bootTime }

// SetBootTime records the boot time, called once at startup.
func (s *Supervisor) SetBootTime(t int64) { s.bootTime = t }

// ProcessExit is one reaped child's final state, as reported by the
// process table.
type ProcessExit struct {
	PID      uint64
	ExitCode int
}

// ReapZombies updates every service whose PID matches one of exits,
// applying its restart policy.
func (s *Supervisor) ReapZombies(exits []ProcessExit) {
	for _, exit := range exits {
		for _, svc := range s.services {
			if !svc.HasPID || svc.PID != exit.PID {
				continue
			}
			svc.State = Stopped
			svc.ExitCode = exit.ExitCode
			svc.HasPID = false
			svc.PID = 0

			switch svc.Config.Restart {
			case RestartAlways:
				svc.RestartCount++
				svc.State = Starting
			case RestartOnFailure:
				if exit.ExitCode != 0 {
					svc.RestartCount++
					svc.State = Starting
				}
			}
			break
		}
	}
}
