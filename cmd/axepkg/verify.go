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
)

// verifyCommand implements subcommands.Command for "verify".
type verifyCommand struct{}

func (*verifyCommand) Name() string     { return "verify" }
func (*verifyCommand) Synopsis() string { return "check that every installed package's binary is present and non-empty" }
func (*verifyCommand) Usage() string    { return "verify\n" }
func (*verifyCommand) SetFlags(*flag.FlagSet) {}

func (c *verifyCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mgr := newManager()
	results, err := mgr.Verify()
	if err != nil {
		fmt.Printf("axepkg: verify: %v\n", err)
		return subcommands.ExitFailure
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	bad := 0
	for _, name := range names {
		status := "ok"
		if !results[name] {
			status = "CORRUPT"
			bad++
		}
		fmt.Printf("%-20s %s\n", name, status)
	}
	if bad > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
