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

// Package appctx stores a request-scoped logger in the context so
// handlers down the chain can pull it out with appctx.GetLogger.
package appctx

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/appctx"
)

// New returns a middleware that attaches a logger tagged with a
// request id to every request context.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := log.With().Str("request-id", uuid.New().String()).Logger()
			ctx := appctx.WithLogger(r.Context(), &sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
