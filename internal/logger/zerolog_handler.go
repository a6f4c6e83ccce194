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
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// HTTPTracer is a narrow, zerolog-backed logger dedicated to wire-level HTTP
// tracing in internal/rqbitapi. The rest of the process logs through the
// slog-based Logger above (the teacher's own convention); HTTP tracing
// reuses zerolog's chained-field idiom instead, the way autobrr-qui's
// qbittorrent client logs request/response details.
type HTTPTracer struct {
	log zerolog.Logger
}

// ZerologLevel maps one of the TRACE/DEBUG/INFO/WARNING/ERROR/OFF slog
// levels onto the nearest zerolog.Level, so the HTTP tracer's verbosity
// tracks the same --log-severity/-v flag as the rest of the process.
func ZerologLevel(lvl slog.Level) zerolog.Level {
	switch {
	case lvl < LevelDebug:
		return zerolog.TraceLevel
	case lvl < LevelInfo:
		return zerolog.DebugLevel
	case lvl < LevelWarning:
		return zerolog.InfoLevel
	case lvl < LevelError:
		return zerolog.WarnLevel
	case lvl < LevelOff:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// NewHTTPTracer builds an HTTPTracer writing to w (os.Stderr in production,
// a bytes.Buffer in tests) at the given zerolog level.
func NewHTTPTracer(w io.Writer, level zerolog.Level) *HTTPTracer {
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("component", "rqbitapi").Logger()
	return &HTTPTracer{log: zl}
}

// Request logs an outgoing HTTP request before it is sent.
func (t *HTTPTracer) Request(method, url string, attempt int) {
	t.log.Debug().Str("method", method).Str("url", url).Int("attempt", attempt).Msg("http request")
}

// Response logs the outcome of an HTTP request.
func (t *HTTPTracer) Response(method, url string, status int, dur time.Duration, err error) {
	ev := t.log.Debug()
	if err != nil {
		ev = t.log.Warn().Err(err)
	}
	ev.Str("method", method).Str("url", url).Int("status", status).Dur("elapsed", dur).Msg("http response")
}
