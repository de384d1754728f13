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

// Package filemgr exposes file management operations on the
// repository: copy, move, delete, existence and version queries, and
// directory (de)compression. All routes require a bearer token.
package filemgr

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/lock"
	lockregistry "github.com/rcsb/depot/pkg/lock/registry"
	"github.com/rcsb/depot/pkg/repopath"
	"github.com/rcsb/depot/pkg/rhttp/global"
)

func init() {
	global.Register("filemgr", New)
}

type config struct {
	Prefix           string `mapstructure:"prefix"`
	RepositoryDir    string `mapstructure:"repository_dir_path"`
	FilePermissions  string `mapstructure:"default_file_permissions"`
	CompressionType  string `mapstructure:"compression_type"`
	LockTransactions bool   `mapstructure:"lock_transactions"`
	LockType         string `mapstructure:"lock_type"`
	LockTimeout      int64  `mapstructure:"lock_timeout"`
}

type svc struct {
	conf        *config
	router      chi.Router
	log         *zerolog.Logger
	resolver    *repopath.Resolver
	locker      lock.Locker
	perm        os.FileMode
	lockTimeout time.Duration
}

// New returns the filemgr service built from its flattened config map.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "filemgr: error decoding conf")
	}
	if c.Prefix == "" {
		c.Prefix = "filemgr"
	}
	if c.RepositoryDir == "" {
		return nil, errors.New("filemgr: repository_dir_path not set")
	}
	if c.FilePermissions == "" {
		c.FilePermissions = "0755"
	}
	if c.CompressionType == "" {
		c.CompressionType = "zip"
	}
	if c.LockType == "" {
		c.LockType = "soft"
	}

	perm, err := strconv.ParseUint(c.FilePermissions, 8, 32)
	if err != nil {
		return nil, errors.Wrap(err, "filemgr: malformed default_file_permissions")
	}

	locker := lock.NewNop()
	if c.LockTransactions {
		newLocker, ok := lockregistry.NewFuncs[c.LockType]
		if !ok {
			return nil, errors.Errorf("filemgr: unknown lock_type %q", c.LockType)
		}
		if locker, err = newLocker(m); err != nil {
			return nil, err
		}
	}

	s := &svc{
		conf:        c,
		log:         log,
		resolver:    repopath.NewResolver(c.RepositoryDir),
		locker:      locker,
		perm:        os.FileMode(perm),
		lockTimeout: time.Duration(c.LockTimeout) * time.Second,
	}
	s.initRouter()
	return s, nil
}

func (s *svc) Prefix() string { return s.conf.Prefix }

func (s *svc) Handler() http.Handler { return s.router }

func (s *svc) Unprotected() []string { return []string{} }

func (s *svc) Close() error { return s.locker.Close() }

func (s *svc) initRouter() {
	r := chi.NewRouter()
	r.Post("/copy", s.handleCopy)
	r.Post("/move", s.handleMove)
	r.Post("/delete", s.handleDelete)
	r.Get("/exists", s.handleExists)
	r.Get("/path-exists", s.handlePathExists)
	r.Get("/list", s.handleList)
	r.Get("/latest-version", s.handleLatestVersion)
	r.Get("/next-version", s.handleNextVersion)
	r.Post("/compress-dir", s.handleCompressDir)
	r.Post("/decompress-dir", s.handleDecompressDir)
	s.router = r
}
