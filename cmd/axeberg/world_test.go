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
	"testing"

	"axeberg.dev/os/pkg/sentry/control"
	"axeberg.dev/os/pkg/sentry/kernel"
)

func TestBootStartsBuiltinServicesInOrder(t *testing.T) {
	w := newWorld()
	if err := w.boot(control.TargetMultiUser); err != nil {
		t.Fatalf("boot: %v", err)
	}

	shell, ok := w.supervisor.GetService("shell")
	if !ok || shell.State != control.Running {
		t.Fatalf("shell service: %+v, ok=%v", shell, ok)
	}
	tty, ok := w.supervisor.GetService("tty")
	if !ok || tty.State != control.Running {
		t.Fatalf("tty service: %+v, ok=%v", tty, ok)
	}

	initProc, ok := w.procs.Get(kernel.Pid(1))
	if !ok || initProc.Name != "init" {
		t.Fatalf("pid 1 should be init, got %+v, %v", initProc, ok)
	}
}

func TestBootRejectsUnknownTarget(t *testing.T) {
	if _, ok := control.ParseTarget("no-such-target"); ok {
		t.Fatalf("ParseTarget should reject an unknown target")
	}
}

func TestSignalNameLookup(t *testing.T) {
	cases := map[string]kernel.Signal{
		"SIGTERM": kernel.SIGTERM,
		"SIGKILL": kernel.SIGKILL,
		"SIGINT":  kernel.SIGINT,
	}
	for name, want := range cases {
		got, ok := parseSignalName(name)
		if !ok || got != want {
			t.Fatalf("parseSignalName(%q) = %v, %v, want %v", name, got, ok, want)
		}
	}
	if _, ok := parseSignalName("SIGBOGUS"); ok {
		t.Fatalf("parseSignalName should reject an unknown name")
	}
}
