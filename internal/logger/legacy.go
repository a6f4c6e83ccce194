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

package logger

import (
	"context"
	"log"
	"log/slog"
)

// legacyWriter adapts a component Logger into an io.Writer so it can back a
// standard library *log.Logger, for the one corner of rqbit-fuse that still
// needs one: jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger fields,
// which predate slog.
type legacyWriter struct {
	log   *Logger
	level slog.Level
}

func (w legacyWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.log.Log(context.Background(), w.level, msg)
	return len(p), nil
}

// NewLegacyLogger builds a *log.Logger at severity level, prefixed with
// prefix, that forwards every line into component's structured log output.
func NewLegacyLogger(level slog.Level, component, prefix string) *log.Logger {
	return log.New(legacyWriter{log: New(component), level: level}, prefix, 0)
}
