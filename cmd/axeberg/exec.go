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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"axeberg.dev/os/pkg/sentry/control"
	"axeberg.dev/os/pkg/sentry/kernel"
)

// execCommand implements subcommands.Command for "exec".
type execCommand struct {
	target string
}

func (*execCommand) Name() string     { return "exec" }
func (*execCommand) Synopsis() string { return "boot, then spawn one extra process under init" }
func (*execCommand) Usage() string {
	return "exec [-target=multi-user] <name> [args...] - spawns a new process and reports its pid\n"
}

func (c *execCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.target, "target", "multi-user", "runlevel to boot to before spawning")
}

func (c *execCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cmdline := f.Args()

	target, ok := control.ParseTarget(c.target)
	if !ok {
		fmt.Printf("axeberg: unknown target %q\n", c.target)
		return subcommands.ExitUsageError
	}

	w := newWorld()
	if err := w.boot(target); err != nil {
		fmt.Printf("axeberg: boot completed with errors: %v\n", err)
	}

	proc, err := w.procs.Spawn(cmdline[0], kernel.Pid(1), true, cmdline)
	if err != nil {
		fmt.Printf("axeberg: exec failed: %v\n", err)
		return subcommands.ExitFailure
	}
	taskID := w.executor.Spawn(&serviceRunner{}, 0)
	proc.TaskID = taskID
	w.executor.RunUntilIdle(0)

	fmt.Printf("spawned pid %d (%s) under pid %d\n", proc.PID, proc.Name, proc.ParentPID)
	return subcommands.ExitSuccess
}
