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

// Command axepkg is the package manager's CLI front-end: install,
// remove, list, search, verify, upgrade, and clean-cache, all driven
// through pkg/pkgmgr.Manager against a local package database rooted at
// -db-dir and a registry of package metadata/archives rooted at
// -registry-dir.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"axeberg.dev/os/pkg/pkgmgr"
)

var (
	dbDir       = flag.String("db-dir", "/var/lib/pkg", "root directory for the local install database")
	registryDir = flag.String("registry-dir", "/var/lib/pkg/registry", "directory serving registry entries and .axepkg archives")
	binDir      = flag.String("bin-dir", "/bin", "directory installed binaries are written to")
	cacheDir    = flag.String("cache-dir", "", "downloaded-archive cache directory (defaults under -db-dir)")
)

func newManager() *pkgmgr.Manager {
	reg := newFSRegistry(*registryDir)
	mgr := pkgmgr.NewManager(reg, reg, *dbDir)
	mgr.Installer.SetBinDir(*binDir)
	if *cacheDir != "" {
		mgr.Installer.SetCacheDir(*cacheDir)
	} else {
		mgr.Installer.SetCacheDir(filepath.Join(*dbDir, "cache"))
	}
	return mgr
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&installCommand{}, "")
	subcommands.Register(&removeCommand{}, "")
	subcommands.Register(&listCommand{}, "")
	subcommands.Register(&searchCommand{}, "")
	subcommands.Register(&verifyCommand{}, "")
	subcommands.Register(&upgradeCommand{}, "")
	subcommands.Register(&cleanCacheCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
