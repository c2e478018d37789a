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

// Package log implements the kernel's own logging sink, independent of
// whatever the host page or CLI process wires up for its own stderr. It
// matches the gVisor pkg/log call surface (Debugf/Infof/Warningf
// on a package-level default, with sub-loggers quoted by name) so callers
// read the same whether or not they've seen this codebase before.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors the gVisor log package's verbosity levels.
type Level int

const (
	// Warning is emitted for conditions that do not stop the kernel but
	// indicate a guest or host misbehaved.
	Warning Level = iota
	// Info is the default level for lifecycle events (process spawned,
	// service started, package installed).
	Info
	// Debug is reserved for step-by-step kernel tracing.
	Debug
)

// Logger wraps a logrus.Logger with the gVisor-shaped helpers. The zero
// value is not usable; construct with New.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger writing to os.Stderr, named for the subsystem that owns it
// (e.g. "kernel", "pkgmgr", "vfs") so multiplexed output stays attributable.
func New(name string, level Level) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(toLogrusLevel(level))
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return &Logger{entry: base.WithField("subsys", name)}
}

func toLogrusLevel(l Level) logrus.Level {
	switch l {
	case Debug:
		return logrus.DebugLevel
	case Warning:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel adjusts the logger's verbosity at runtime.
func (l *Logger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(toLogrusLevel(level))
}

// Debugf logs at Debug level.
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

// Infof logs at Info level.
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

// Warningf logs at Warning level.
func (l *Logger) Warningf(format string, args ...any) { l.entry.Warnf(format, args...) }

// With returns a Logger annotated with an additional structured field,
// e.g. log.Default().With("pid", pid).Infof("spawned %s", name).
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

var def = New("axeberg", Info)

// Default returns the process-wide default logger.
func Default() *Logger { return def }

// SetDefaultLevel adjusts the default logger's verbosity.
func SetDefaultLevel(level Level) { def.SetLevel(level) }

// Debugf logs at Debug level on the default logger.
func Debugf(format string, args ...any) { def.Debugf(format, args...) }

// Infof logs at Info level on the default logger.
func Infof(format string, args ...any) { def.Infof(format, args...) }

// Warningf logs at Warning level on the default logger.
func Warningf(format string, args ...any) { def.Warningf(format, args...) }
