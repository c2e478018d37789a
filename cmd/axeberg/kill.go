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
	"strconv"

	"github.com/google/subcommands"

	"axeberg.dev/os/pkg/sentry/control"
	"axeberg.dev/os/pkg/sentry/kernel"
)

// killCommand implements subcommands.Command for "kill".
type killCommand struct {
	target string
}

func (*killCommand) Name() string     { return "kill" }
func (*killCommand) Synopsis() string { return "boot, then deliver a signal to one process" }
func (*killCommand) Usage() string {
	return "kill [-target=multi-user] <pid> <signal> - e.g. `axeberg kill 2 SIGTERM`\n"
}

func (c *killCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.target, "target", "multi-user", "runlevel to boot to before signaling")
}

func (c *killCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	pidNum, err := strconv.ParseUint(f.Arg(0), 10, 64)
	if err != nil {
		fmt.Printf("axeberg: invalid pid %q: %v\n", f.Arg(0), err)
		return subcommands.ExitUsageError
	}
	sig, ok := parseSignalName(f.Arg(1))
	if !ok {
		fmt.Printf("axeberg: unknown signal %q\n", f.Arg(1))
		return subcommands.ExitUsageError
	}

	target, ok := control.ParseTarget(c.target)
	if !ok {
		fmt.Printf("axeberg: unknown target %q\n", c.target)
		return subcommands.ExitUsageError
	}

	w := newWorld()
	if err := w.boot(target); err != nil {
		fmt.Printf("axeberg: boot completed with errors: %v\n", err)
	}

	proc, ok := w.procs.Get(kernel.Pid(pidNum))
	if !ok {
		fmt.Printf("axeberg: no such process: %d\n", pidNum)
		return subcommands.ExitFailure
	}
	proc.Signals.Send(sig)
	fmt.Printf("sent %s to pid %d (%s); %d signal(s) now pending\n", sig, pidNum, proc.Name, proc.Signals.PendingCount())
	return subcommands.ExitSuccess
}

var signalsByName = map[string]kernel.Signal{
	"SIGTERM": kernel.SIGTERM,
	"SIGKILL": kernel.SIGKILL,
	"SIGSTOP": kernel.SIGSTOP,
	"SIGCONT": kernel.SIGCONT,
	"SIGINT":  kernel.SIGINT,
	"SIGQUIT": kernel.SIGQUIT,
	"SIGHUP":  kernel.SIGHUP,
	"SIGUSR1": kernel.SIGUSR1,
	"SIGUSR2": kernel.SIGUSR2,
	"SIGCHLD": kernel.SIGCHLD,
	"SIGALRM": kernel.SIGALRM,
	"SIGPIPE": kernel.SIGPIPE,
}

func parseSignalName(s string) (kernel.Signal, bool) {
	sig, ok := signalsByName[s]
	return sig, ok
}
