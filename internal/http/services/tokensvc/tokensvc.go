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

// Package tokensvc issues bearer tokens for the configured subject.
// The route is public but callers must present the shared secret.
package tokensvc

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/internal/http/services/fileio"
	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/rhttp/global"
	"github.com/rcsb/depot/pkg/token"
	tokenmgr "github.com/rcsb/depot/pkg/token/manager/jwt"
)

func init() {
	global.Register("tokensvc", New)
}

type config struct {
	Prefix  string `mapstructure:"prefix"`
	Subject string `mapstructure:"jwt_subject"`
	Secret  string `mapstructure:"jwt_secret"`
}

type svc struct {
	conf   *config
	router chi.Router
	log    *zerolog.Logger
	mgr    token.Manager
}

// New returns the token service built from its flattened config map.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "tokensvc: error decoding conf")
	}
	if c.Prefix == "" {
		c.Prefix = "token"
	}
	if c.Subject == "" {
		return nil, errors.New("tokensvc: jwt_subject not set")
	}

	mgr, err := tokenmgr.New(m)
	if err != nil {
		return nil, err
	}

	s := &svc{conf: c, log: log, mgr: mgr}
	r := chi.NewRouter()
	r.Post("/", s.handleMint)
	s.router = r
	return s, nil
}

func (s *svc) Prefix() string { return s.conf.Prefix }

func (s *svc) Handler() http.Handler { return s.router }

func (s *svc) Unprotected() []string { return []string{"/"} }

func (s *svc) Close() error { return nil }

func (s *svc) handleMint(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	if err := r.ParseForm(); err != nil {
		fileio.WriteError(w, log, errtypes.BadRequest("malformed form body"))
		return
	}
	secret := r.PostFormValue("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.conf.Secret)) != 1 {
		fileio.WriteError(w, log, errtypes.InvalidCredentials("secret mismatch"))
		return
	}

	subject := r.PostFormValue("subject")
	if subject == "" {
		subject = s.conf.Subject
	}
	if subject != s.conf.Subject {
		fileio.WriteError(w, log, errtypes.InvalidCredentials("unknown subject"))
		return
	}

	tkn, err := s.mgr.MintToken(r.Context(), subject)
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"token": tkn, "subject": subject})
}
