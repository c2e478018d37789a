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
)

// removeCommand implements subcommands.Command for "remove".
type removeCommand struct{}

func (*removeCommand) Name() string     { return "remove" }
func (*removeCommand) Synopsis() string { return "uninstall a package, failing if anything depends on it" }
func (*removeCommand) Usage() string    { return "remove <name>\n" }
func (*removeCommand) SetFlags(*flag.FlagSet) {}

func (c *removeCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	mgr := newManager()
	if err := mgr.Remove(f.Arg(0)); err != nil {
		fmt.Printf("axepkg: remove %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Printf("removed %s\n", f.Arg(0))
	return subcommands.ExitSuccess
}
