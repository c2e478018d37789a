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
	"os"
	"path/filepath"

	"axeberg.dev/os/pkg/pkgmgr"
)

// fsRegistry is the simplest Fetcher/ArchiveSource pair that can back
// the axepkg CLI without reaching onto the network: a directory of
// "<name>.toml" registry-entry files (the same TOML shape
// PackageRegistry decodes) alongside the "<name>-<version>.axepkg"
// archives they describe. A hosted registry would swap this for an
// HTTP-backed Fetcher behind the same two interfaces; nothing in
// pkg/pkgmgr depends on which one is plugged in.
type fsRegistry struct {
	dir string
}

func newFSRegistry(dir string) *fsRegistry { return &fsRegistry{dir: dir} }

func (r *fsRegistry) FetchPackage(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.dir, name+".toml"))
}

func (r *fsRegistry) FetchIndex() ([]byte, error) {
	return os.ReadFile(filepath.Join(r.dir, "index.toml"))
}

func (r *fsRegistry) FetchArchive(id pkgmgr.PackageID) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.dir, id.String()+".axepkg"))
}
