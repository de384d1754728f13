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

// Package health answers liveness probes.
package health

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/rhttp/global"
)

func init() {
	global.Register("health", New)
}

type svc struct{}

// New returns the health service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	return &svc{}, nil
}

func (s *svc) Prefix() string { return "healthz" }

func (s *svc) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

func (s *svc) Unprotected() []string { return []string{"/"} }

func (s *svc) Close() error { return nil }
