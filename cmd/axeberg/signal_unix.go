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

//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"axeberg.dev/os/pkg/log"
	"axeberg.dev/os/pkg/sentry/kernel"
)

// installSignalForwarding translates host SIGTERM/SIGINT delivered to
// this process into the kernel's own emulated signal numbers, logging
// the mapping and invoking cancel so a long-running subcommand can wind
// down. This is the one thin host-collaborator edge spec.md's
// concurrency model allows: the kernel itself never talks to a real
// signal(7) implementation.
func installSignalForwarding(cancel func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, unix.SIGTERM, unix.SIGINT)
	go func() {
		for sig := range ch {
			guest := hostToGuest(sig)
			log.Default().With("host_signal", sig).Infof("forwarding as %s", guest)
			cancel()
		}
	}()
}

func hostToGuest(sig os.Signal) kernel.Signal {
	switch sig {
	case unix.SIGINT:
		return kernel.SIGINT
	default:
		return kernel.SIGTERM
	}
}
