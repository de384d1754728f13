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

// Package fileio exposes the chunked upload and download operations
// over HTTP. The download route is public; everything else sits behind
// the bearer interceptor.
package fileio

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/digest"
	"github.com/rcsb/depot/pkg/downloader"
	"github.com/rcsb/depot/pkg/kv"
	kvregistry "github.com/rcsb/depot/pkg/kv/registry"
	"github.com/rcsb/depot/pkg/lock"
	lockregistry "github.com/rcsb/depot/pkg/lock/registry"
	"github.com/rcsb/depot/pkg/repopath"
	"github.com/rcsb/depot/pkg/rhttp/global"
	"github.com/rcsb/depot/pkg/session"
	"github.com/rcsb/depot/pkg/uploader"
)

func init() {
	global.Register("fileio", New)
}

type config struct {
	Prefix           string `mapstructure:"prefix"`
	RepositoryDir    string `mapstructure:"repository_dir_path"`
	SessionDir       string `mapstructure:"session_dir_path"`
	FilePermissions  string `mapstructure:"default_file_permissions"`
	ChunkSize        int64  `mapstructure:"chunk_size"`
	HashType         string `mapstructure:"hash_type"`
	LockTransactions bool   `mapstructure:"lock_transactions"`
	LockType         string `mapstructure:"lock_type"`
	LockTimeout      int64  `mapstructure:"lock_timeout"`
	KVMode           string `mapstructure:"kv_mode"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "fileio"
	}
	if c.FilePermissions == "" {
		c.FilePermissions = "0755"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 8 << 20
	}
	if c.HashType == "" {
		c.HashType = digest.MD5
	}
	if c.LockType == "" {
		c.LockType = "soft"
	}
	if c.KVMode == "" {
		c.KVMode = "sqlite"
	}
}

type svc struct {
	conf   *config
	router chi.Router
	log    *zerolog.Logger

	store    kv.Store
	locker   lock.Locker
	resolver *repopath.Resolver
	up       *uploader.Engine
	down     *downloader.Engine
}

// New returns the fileio service built from its flattened config map.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "fileio: error decoding conf")
	}
	c.ApplyDefaults()
	if c.RepositoryDir == "" {
		return nil, errors.New("fileio: repository_dir_path not set")
	}
	if c.SessionDir == "" {
		return nil, errors.New("fileio: session_dir_path not set")
	}

	perm, err := strconv.ParseUint(c.FilePermissions, 8, 32)
	if err != nil {
		return nil, errors.Wrap(err, "fileio: malformed default_file_permissions")
	}

	newStore, ok := kvregistry.NewFuncs[c.KVMode]
	if !ok {
		return nil, errors.Errorf("fileio: unknown kv_mode %q", c.KVMode)
	}
	store, err := newStore(m)
	if err != nil {
		return nil, err
	}

	var locker lock.Locker
	if c.LockTransactions {
		newLocker, ok := lockregistry.NewFuncs[c.LockType]
		if !ok {
			store.Close()
			return nil, errors.Errorf("fileio: unknown lock_type %q", c.LockType)
		}
		if locker, err = newLocker(m); err != nil {
			store.Close()
			return nil, err
		}
	} else {
		locker = lock.NewNop()
	}

	sessions, err := session.NewManager(store, c.SessionDir)
	if err != nil {
		store.Close()
		locker.Close()
		return nil, err
	}

	resolver := repopath.NewResolver(c.RepositoryDir)
	s := &svc{
		conf:     c,
		log:      log,
		store:    store,
		locker:   locker,
		resolver: resolver,
		up: uploader.New(resolver, sessions, locker, os.FileMode(perm),
			c.ChunkSize, time.Duration(c.LockTimeout)*time.Second),
		down: downloader.New(resolver, c.HashType),
	}
	s.initRouter()
	return s, nil
}

func (s *svc) Prefix() string { return s.conf.Prefix }

func (s *svc) Handler() http.Handler { return s.router }

// Unprotected keeps the download route public.
func (s *svc) Unprotected() []string { return []string{"/download"} }

func (s *svc) Close() error {
	err := s.locker.Close()
	if serr := s.store.Close(); err == nil {
		err = serr
	}
	return err
}

func (s *svc) initRouter() {
	r := chi.NewRouter()
	r.Get("/upload-parameters", s.handleUploadParameters)
	r.Post("/upload", s.handleUpload)
	r.Get("/download", s.handleDownload)
	s.router = r
}
