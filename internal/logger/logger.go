// Copyright 2026 The rqbit-fuse Authors
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

// Package logger provides rqbit-fuse's structured logging, built directly on
// top of the standard library's log/slog, mirroring the teacher's own
// internal/logger convention: a severity vocabulary of TRACE, DEBUG, INFO,
// WARNING, ERROR and OFF, and a per-component child logger rather than one
// global logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Severity levels, matching cfg's TRACE/DEBUG/INFO/WARNING/ERROR/OFF
// vocabulary. TRACE sits below slog's own LevelDebug so that "-vv"-style
// tracing can be distinguished from ordinary debug output.
const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelOff     = slog.Level(16)
)

var levelNames = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   LevelDebug,
	"INFO":    LevelInfo,
	"WARNING": LevelWarning,
	"ERROR":   LevelError,
	"OFF":     LevelOff,
}

// ParseLevel converts one of the TRACE/DEBUG/INFO/WARNING/ERROR/OFF strings
// into a slog.Level, defaulting to INFO for anything unrecognized.
func ParseLevel(s string) slog.Level {
	if lvl, ok := levelNames[s]; ok {
		return lvl
	}
	return LevelInfo
}

var (
	mu       sync.Mutex
	levelVar = new(slog.LevelVar)
	out      io.Writer = os.Stderr
)

func init() {
	levelVar.Set(LevelInfo)
}

// SetLevel adjusts the process-wide minimum severity. It affects every
// Logger returned by New, past and future, since they all share levelVar.
func SetLevel(lvl slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(lvl)
}

// SetOutput redirects where log records are written. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Logger wraps a *slog.Logger scoped to one rqbit-fuse component (fs,
// bridge, discovery, rqbitapi, stream, ...).
type Logger struct {
	*slog.Logger
	component string
}

// New returns a Logger for the named component, e.g. New("bridge").
func New(component string) *Logger {
	mu.Lock()
	w := out
	mu.Unlock()

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
			}
			return a
		},
	})
	return &Logger{
		Logger:    slog.New(handler).With("component", component),
		component: component,
	}
}

func severityName(lvl slog.Level) string {
	switch {
	case lvl < LevelDebug:
		return "TRACE"
	case lvl < LevelInfo:
		return "DEBUG"
	case lvl < LevelWarning:
		return "INFO"
	case lvl < LevelError:
		return "WARNING"
	case lvl < LevelOff:
		return "ERROR"
	default:
		return "OFF"
	}
}

// Tracef logs at TRACE severity, below slog's built-in Debug.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Logger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}
