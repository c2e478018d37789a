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
)

// listCommand implements subcommands.Command for "list".
type listCommand struct{}

func (*listCommand) Name() string     { return "list" }
func (*listCommand) Synopsis() string { return "list every installed package" }
func (*listCommand) Usage() string    { return "list\n" }
func (*listCommand) SetFlags(*flag.FlagSet) {}

func (c *listCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mgr := newManager()
	installed, err := mgr.ListInstalled()
	if err != nil {
		fmt.Printf("axepkg: list: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%-20s %-12s %-30s %s\n", "NAME", "VERSION", "DEPENDENCIES", "INSTALLED")
	for _, pkg := range installed {
		when := time.Unix(pkg.InstalledAt, 0).Format(time.RFC3339)
		fmt.Printf("%-20s %-12s %-30v %s\n", pkg.Name, pkg.VersionRaw, pkg.Dependencies, when)
	}
	return subcommands.ExitSuccess
}
