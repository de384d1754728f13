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

// Package adminsvc exposes session inspection, KV table clearing and
// on-demand sweeps. All routes require a bearer token.
package adminsvc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/internal/http/services/fileio"
	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv"
	kvregistry "github.com/rcsb/depot/pkg/kv/registry"
	"github.com/rcsb/depot/pkg/lock"
	lockregistry "github.com/rcsb/depot/pkg/lock/registry"
	"github.com/rcsb/depot/pkg/rhttp/global"
	"github.com/rcsb/depot/pkg/session"
	"github.com/rcsb/depot/pkg/sweeper"
)

func init() {
	global.Register("adminsvc", New)
}

type config struct {
	Prefix           string `mapstructure:"prefix"`
	RepositoryDir    string `mapstructure:"repository_dir_path"`
	SessionDir       string `mapstructure:"session_dir_path"`
	KVMode           string `mapstructure:"kv_mode"`
	KVMaxSeconds     int64  `mapstructure:"kv_max_seconds"`
	LockTransactions bool   `mapstructure:"lock_transactions"`
	LockType         string `mapstructure:"lock_type"`
	LockSweepSeconds int64  `mapstructure:"lock_sweep_seconds"`
}

type svc struct {
	conf   *config
	router chi.Router
	log    *zerolog.Logger
	store  kv.Store
	locker lock.Locker
	sweep  *sweeper.Sweeper
}

// New returns the adminsvc service built from its flattened config map.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "adminsvc: error decoding conf")
	}
	if c.Prefix == "" {
		c.Prefix = "admin"
	}
	if c.KVMode == "" {
		c.KVMode = "sqlite"
	}
	if c.LockType == "" {
		c.LockType = "soft"
	}
	if c.RepositoryDir == "" || c.SessionDir == "" {
		return nil, errors.New("adminsvc: repository_dir_path or session_dir_path not set")
	}

	newStore, ok := kvregistry.NewFuncs[c.KVMode]
	if !ok {
		return nil, errors.Errorf("adminsvc: unknown kv_mode %q", c.KVMode)
	}
	store, err := newStore(m)
	if err != nil {
		return nil, err
	}

	locker := lock.NewNop()
	if c.LockTransactions {
		newLocker, ok := lockregistry.NewFuncs[c.LockType]
		if !ok {
			store.Close()
			return nil, errors.Errorf("adminsvc: unknown lock_type %q", c.LockType)
		}
		if locker, err = newLocker(m); err != nil {
			store.Close()
			return nil, err
		}
	}

	sessions, err := session.NewManager(store, c.SessionDir)
	if err != nil {
		store.Close()
		locker.Close()
		return nil, err
	}

	s := &svc{
		conf:   c,
		log:    log,
		store:  store,
		locker: locker,
		sweep: sweeper.New(sessions, locker, c.RepositoryDir,
			time.Duration(c.KVMaxSeconds)*time.Second,
			time.Duration(c.LockSweepSeconds)*time.Second,
			time.Hour), // interval unused for on-demand sweeps
	}
	s.initRouter()
	return s, nil
}

func (s *svc) Prefix() string { return s.conf.Prefix }

func (s *svc) Handler() http.Handler { return s.router }

func (s *svc) Unprotected() []string { return []string{} }

func (s *svc) Close() error {
	err := s.locker.Close()
	if serr := s.store.Close(); err == nil {
		err = serr
	}
	return err
}

func (s *svc) initRouter() {
	r := chi.NewRouter()
	r.Get("/sessions", s.handleSessions)
	r.Post("/clear", s.handleClear)
	r.Post("/sweep", s.handleSweep)
	s.router = r
}

func (s *svc) handleSessions(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	ids, err := s.store.SessionIDs(r.Context())
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}

	out := make(map[string]map[string]string, len(ids))
	for _, id := range ids {
		fields, err := s.store.Sessions().GetAll(r.Context(), id)
		if err != nil {
			if _, ok := err.(errtypes.IsNotFound); ok {
				continue // swept between list and read
			}
			fileio.WriteError(w, log, err)
			return
		}
		out[id] = fields
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (s *svc) handleClear(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	table := r.URL.Query().Get("table")
	if table != kv.TableSessions && table != kv.TableMap {
		fileio.WriteError(w, log, errtypes.BadRequest("unknown table "+table))
		return
	}
	if err := s.store.ClearTable(r.Context(), table); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	log.Info().Str("table", table).Msg("kv table cleared")
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"cleared": table})
}

func (s *svc) handleSweep(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	all := r.URL.Query().Get("all") == "true"
	if err := s.sweep.Sweep(r.Context(), all); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]bool{"swept": true, "all": all})
}
