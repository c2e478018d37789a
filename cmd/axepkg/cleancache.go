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

// cleanCacheCommand implements subcommands.Command for "clean-cache".
type cleanCacheCommand struct{}

func (*cleanCacheCommand) Name() string     { return "clean-cache" }
func (*cleanCacheCommand) Synopsis() string { return "evict the downloaded-archive cache" }
func (*cleanCacheCommand) Usage() string    { return "clean-cache\n" }
func (*cleanCacheCommand) SetFlags(*flag.FlagSet) {}

func (c *cleanCacheCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mgr := newManager()
	if err := mgr.CleanCache(); err != nil {
		fmt.Printf("axepkg: clean-cache: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println("cache cleaned")
	return subcommands.ExitSuccess
}
