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
)

// bootCommand implements subcommands.Command for "boot".
type bootCommand struct {
	target string
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot a fresh kernel instance to a target runlevel" }
func (*bootCommand) Usage() string {
	return "boot [-target=multi-user] - starts every service wanted by the target and reports their state\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.target, "target", "multi-user", "runlevel to boot to: rescue, multi-user, or graphical")
}

func (c *bootCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	target, ok := control.ParseTarget(c.target)
	if !ok {
		fmt.Printf("axeberg: unknown target %q\n", c.target)
		return subcommands.ExitUsageError
	}

	w := newWorld()
	if err := w.boot(target); err != nil {
		fmt.Printf("axeberg: boot to %s completed with errors: %v\n", target, err)
	}

	fmt.Printf("booted to %s, hostname %s\n", w.supervisor.Target(), w.supervisor.Hostname())
	for _, svc := range w.supervisor.ListServices() {
		fmt.Printf("  %-10s %-10s pid=%d\n", svc.Name, svc.State, svc.PID)
	}
	return subcommands.ExitSuccess
}
