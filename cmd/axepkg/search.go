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

// searchCommand implements subcommands.Command for "search".
type searchCommand struct{}

func (*searchCommand) Name() string     { return "search" }
func (*searchCommand) Synopsis() string { return "search the registry index by name or keyword" }
func (*searchCommand) Usage() string    { return "search <query>\n" }
func (*searchCommand) SetFlags(*flag.FlagSet) {}

func (c *searchCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	mgr := newManager()
	if err := mgr.Registry.UpdateIndex(); err != nil {
		fmt.Printf("axepkg: search: refreshing index: %v\n", err)
		return subcommands.ExitFailure
	}
	results := mgr.Registry.Search(f.Arg(0))
	if len(results) == 0 {
		fmt.Println("no matches")
		return subcommands.ExitSuccess
	}
	for _, entry := range results {
		fmt.Printf("%-20s %s\n", entry.Name, entry.Description)
	}
	return subcommands.ExitSuccess
}
