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

// upgradeCommand implements subcommands.Command for "upgrade".
type upgradeCommand struct{}

func (*upgradeCommand) Name() string     { return "upgrade" }
func (*upgradeCommand) Synopsis() string { return "upgrade every installed package to its latest version" }
func (*upgradeCommand) Usage() string    { return "upgrade\n" }
func (*upgradeCommand) SetFlags(*flag.FlagSet) {}

func (c *upgradeCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mgr := newManager()
	upgraded, err := mgr.UpgradeAll(time.Now().Unix())
	if err != nil {
		fmt.Printf("axepkg: upgrade: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(upgraded) == 0 {
		fmt.Println("everything up to date")
		return subcommands.ExitSuccess
	}
	for _, id := range upgraded {
		fmt.Printf("upgraded to %s\n", id)
	}
	return subcommands.ExitSuccess
}
