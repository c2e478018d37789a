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
	"time"

	"github.com/google/subcommands"

	"axeberg.dev/os/pkg/pkgmgr"
)

// installCommand implements subcommands.Command for "install".
type installCommand struct {
	req   string
	local string
}

func (*installCommand) Name() string     { return "install" }
func (*installCommand) Synopsis() string { return "resolve and install a package and its dependencies" }
func (*installCommand) Usage() string {
	return "install [-req=^1.0.0] [-local=path.axepkg] <name>\n"
}

func (c *installCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.req, "req", "*", "version requirement, e.g. ^1.0.0, ~1.2.0, =1.0.0, or *")
	f.StringVar(&c.local, "local", "", "install from a local .axepkg archive instead of the registry")
}

func (c *installCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mgr := newManager()
	if err := mgr.Init(); err != nil {
		fmt.Printf("axepkg: init: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.local != "" {
		id, err := mgr.InstallLocal(c.local)
		if err != nil {
			fmt.Printf("axepkg: install %s: %v\n", c.local, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("installed %s\n", id)
		return subcommands.ExitSuccess
	}

	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	req, err := pkgmgr.ParseVersionReq(c.req)
	if err != nil {
		fmt.Printf("axepkg: invalid -req %q: %v\n", c.req, err)
		return subcommands.ExitUsageError
	}

	id, err := mgr.Install(f.Arg(0), req, time.Now().Unix())
	if err != nil {
		fmt.Printf("axepkg: install %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Printf("installed %s\n", id)
	return subcommands.ExitSuccess
}
