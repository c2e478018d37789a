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
	"sort"

	"github.com/google/subcommands"

	"axeberg.dev/os/pkg/sentry/control"
)

// psCommand implements subcommands.Command for "ps".
type psCommand struct {
	target string
}

func (*psCommand) Name() string     { return "ps" }
func (*psCommand) Synopsis() string { return "boot and list every process in the table" }
func (*psCommand) Usage() string {
	return "ps [-target=multi-user] - boots to target, then lists the resulting process table\n"
}

func (c *psCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.target, "target", "multi-user", "runlevel to boot to before listing")
}

func (c *psCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	target, ok := control.ParseTarget(c.target)
	if !ok {
		fmt.Printf("axeberg: unknown target %q\n", c.target)
		return subcommands.ExitUsageError
	}

	w := newWorld()
	if err := w.boot(target); err != nil {
		fmt.Printf("axeberg: boot completed with errors: %v\n", err)
	}

	procs := w.procs.All()
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })

	fmt.Printf("%-6s %-6s %-10s %-10s %s\n", "PID", "PPID", "STATE", "NAME", "CMDLINE")
	for _, p := range procs {
		fmt.Printf("%-6d %-6d %-10s %-10s %v\n", p.PID, p.ParentPID, p.State, p.Name, p.Cmdline)
	}
	return subcommands.ExitSuccess
}
