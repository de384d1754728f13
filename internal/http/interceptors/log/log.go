// Copyright 2021-2026 RCSB PDB
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

// Package log logs every HTTP request and its response status.
package log

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/appctx"
)

// New returns a request logging middleware.
func New() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := appctx.GetLogger(r.Context())
			start := time.Now()
			lw := &responseLogger{w: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)
			writeLog(log, r, start, lw.status, lw.size)
		})
	}
}

type responseLogger struct {
	w      http.ResponseWriter
	status int
	size   int
}

func (l *responseLogger) Header() http.Header { return l.w.Header() }

func (l *responseLogger) Write(b []byte) (int, error) {
	n, err := l.w.Write(b)
	l.size += n
	return n, err
}

func (l *responseLogger) WriteHeader(status int) {
	l.status = status
	l.w.WriteHeader(status)
}

func (l *responseLogger) Flush() {
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeLog(log *zerolog.Logger, r *http.Request, start time.Time, status, size int) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	var ev *zerolog.Event
	switch {
	case status >= 500:
		ev = log.Error()
	case status >= 400:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("host", host).
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Int("status", status).
		Int("size", size).
		Dur("duration", time.Since(start)).
		Msg("http")
}
