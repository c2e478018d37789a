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

// Command axeberg is the control-plane CLI for the kernel: it boots a
// fresh in-process kernel instance, drives its service supervisor to a
// target runlevel, and reports on or signals the resulting process
// table. It does not itself embed a WASM engine — that is the host
// page's job, reached through pkg/sentry/abi — so every subcommand here
// models one cold-boot-and-inspect cycle rather than attaching to a
// long-lived daemon.
package main

import (
	"fmt"
	"time"

	"axeberg.dev/os/pkg/sentry/control"
	"axeberg.dev/os/pkg/sentry/kernel"
)

// world bundles the three pieces every subcommand needs: a process
// table, a cooperative executor, and the service supervisor driving
// both.
type world struct {
	procs      *kernel.ProcessTable
	executor   *kernel.Executor
	supervisor *control.Supervisor
}

// serviceRunner is the Runner a service's Spawner installs in the
// executor in place of a real guest module instantiation: the host page
// embedding pkg/sentry/abi is responsible for actually running the
// guest's main export, so here it just occupies the task slot and
// reports Done, leaving the process table entry as the visible result.
type serviceRunner struct{ done bool }

func (r *serviceRunner) Run(now int64) kernel.Outcome {
	if r.done {
		return kernel.Outcome{Status: kernel.Done}
	}
	r.done = true
	return kernel.Outcome{Status: kernel.Yielded}
}

// newWorld constructs a fresh kernel instance with an init process
// already spawned as PID 1, and a supervisor whose Spawner creates a
// backing process-table entry plus scheduler task for every service it
// starts.
func newWorld() *world {
	procs := kernel.NewProcessTable()
	executor := kernel.NewExecutor()

	w := &world{procs: procs, executor: executor}

	spawn := func(cfg control.ServiceConfig) (uint64, error) {
		proc, err := procs.Spawn(cfg.Name, kernel.Pid(1), true, []string{cfg.ExecStart})
		if err != nil {
			return 0, err
		}
		id := executor.Spawn(&serviceRunner{}, 0)
		proc.TaskID = id
		return uint64(proc.PID), nil
	}

	sup := control.NewSupervisor(spawn)
	sup.SetBootTime(time.Now().UnixMilli())
	w.supervisor = sup

	if _, err := procs.Spawn("init", 0, false, []string{"/sbin/init"}); err != nil {
		panic(fmt.Sprintf("axeberg: spawning PID 1 failed: %v", err))
	}
	return w
}

// boot drives the supervisor to target and runs the executor until
// every task started in the process either yields to completion or
// blocks.
func (w *world) boot(target control.Target) error {
	now := time.Now().UnixMilli()
	err := w.supervisor.SetTarget(target)
	w.executor.RunUntilIdle(now)
	return err
}
