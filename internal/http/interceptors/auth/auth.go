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

// Package auth gates non-public routes behind a bearer token.
package auth

import (
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/rhttp/global"
	tokenmgr "github.com/rcsb/depot/pkg/token/manager/jwt"
)

type config struct {
	Bypass  bool   `mapstructure:"bypass_authorization"`
	Subject string `mapstructure:"jwt_subject"`
}

// New returns the authentication middleware. Requests to paths listed
// in unprotected, and CORS preflights, pass through without a token.
func New(m map[string]interface{}, unprotected []string) (global.Middleware, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "auth: error decoding conf")
	}
	if c.Bypass {
		return func(h http.Handler) http.Handler { return h }, nil
	}

	mgr, err := tokenmgr.New(m)
	if err != nil {
		return nil, err
	}

	isUnprotected := func(p string) bool {
		for _, u := range unprotected {
			if u == p || strings.HasPrefix(p, u+"/") {
				return true
			}
		}
		return false
	}

	chain := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isUnprotected(r.URL.Path) {
				h.ServeHTTP(w, r)
				return
			}

			log := appctx.GetLogger(r.Context())
			hdr := r.Header.Get("Authorization")
			tkn, ok := strings.CutPrefix(hdr, "Bearer ")
			if !ok || tkn == "" {
				w.Header().Set("WWW-Authenticate", "Bearer realm=\"depot\"")
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			subject, err := mgr.DismantleToken(r.Context(), tkn)
			if err != nil {
				log.Warn().Err(err).Str("uri", r.RequestURI).Msg("token rejected")
				w.Header().Set("WWW-Authenticate", "Bearer realm=\"depot\"")
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			if c.Subject != "" && subject != c.Subject {
				log.Warn().Str("subject", subject).Str("uri", r.RequestURI).Msg("token subject rejected")
				w.Header().Set("WWW-Authenticate", "Bearer realm=\"depot\"")
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			sub := log.With().Str("subject", subject).Logger()
			h.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), &sub)))
		})
	}
	return chain, nil
}
