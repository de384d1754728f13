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

// Command depotd runs the deposition file service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcsb/depot/internal/http/interceptors/appctx"
	"github.com/rcsb/depot/internal/http/interceptors/auth"
	httplog "github.com/rcsb/depot/internal/http/interceptors/log"
	_ "github.com/rcsb/depot/internal/http/services/loader"
	pkgappctx "github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/config"
	kvregistry "github.com/rcsb/depot/pkg/kv/registry"
	lockregistry "github.com/rcsb/depot/pkg/lock/registry"
	"github.com/rcsb/depot/pkg/logger"
	"github.com/rcsb/depot/pkg/rhttp"
	"github.com/rcsb/depot/pkg/rhttp/global"
	"github.com/rcsb/depot/pkg/session"
	"github.com/rcsb/depot/pkg/sweeper"

	_ "github.com/rcsb/depot/pkg/kv/loader"
	_ "github.com/rcsb/depot/pkg/lock/loader"
)

// version is set at build time.
var version = "devel"

var (
	configFlag  = flag.String("c", "/etc/depot/depot.toml", "configuration file")
	versionFlag = flag.Bool("version", false, "print version and exit")
	testFlag    = flag.Bool("t", false, "test the configuration and exit")
)

// defaultServices run when [http.services] is empty.
var defaultServices = []string{"fileio", "filemgr", "adminsvc", "tokensvc", "prometheus", "health"}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("depotd %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	conf, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *testFlag {
		fmt.Println("configuration ok")
		os.Exit(0)
	}

	log, err := logger.New(&conf.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(conf, log); err != nil {
		log.Fatal().Err(err).Msg("depotd failed")
	}
}

func run(conf *config.Config, log *zerolog.Logger) error {
	// Reserve surplus processors for co-located workers.
	if n := runtime.NumCPU() - conf.Core.SurplusProcessors; n >= 1 && conf.Core.SurplusProcessors > 0 {
		runtime.GOMAXPROCS(n)
	}

	perm, err := conf.FilePermissions()
	if err != nil {
		return err
	}
	if err := sweeper.Startup(perm,
		conf.Repo.RepositoryDirPath,
		conf.Repo.SessionDirPath,
		conf.Repo.SharedLockPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = pkgappctx.WithLogger(ctx, log)

	enabled := enabledServices(conf)
	services, err := rhttp.InitServices(enabled, conf.ServiceConfig, log)
	if err != nil {
		return err
	}

	authMW, err := auth.New(conf.ServiceConfig("auth"), unprotectedPaths(services))
	if err != nil {
		return err
	}
	middlewares := []global.Middleware{authMW, httplog.New(), appctx.New(*log)}
	for name, newMW := range global.NewMiddlewares {
		mw, _, err := newMW(conf.ServiceConfig(name))
		if err != nil {
			return err
		}
		middlewares = append(middlewares, mw)
	}

	server := rhttp.New(
		rhttp.WithServices(services),
		rhttp.WithMiddlewares(middlewares),
		rhttp.WithLogger(log.With().Str("pkg", "rhttp").Logger()),
	)

	sw, closeSweeper, err := newSweeper(conf)
	if err != nil {
		return err
	}
	defer closeSweeper()
	go sw.Run(ctx)

	ln, err := net.Listen("tcp", conf.Core.ServerHostAndPort)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- server.Start(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(pkgappctx.WithLogger(context.Background(), log), 30*time.Second)
	defer cancel()
	if err := server.GracefulStop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping http server")
	}
	if err := sw.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error running shutdown sweep")
	}
	return nil
}

func unprotectedPaths(services map[string]global.Service) []string {
	var paths []string
	for _, svc := range services {
		for _, u := range svc.Unprotected() {
			paths = append(paths, path.Join("/", svc.Prefix(), u))
		}
	}
	sort.Strings(paths)
	return paths
}

func enabledServices(conf *config.Config) []string {
	if len(conf.HTTP.Services) == 0 {
		return defaultServices
	}
	names := make([]string, 0, len(conf.HTTP.Services))
	for name := range conf.HTTP.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newSweeper builds the periodic sweeper with its own store and lock
// driver so its lifetime is independent of the HTTP services.
func newSweeper(conf *config.Config) (*sweeper.Sweeper, func(), error) {
	m := conf.ServiceConfig("sweeper")

	newStore, ok := kvregistry.NewFuncs[conf.KV.Mode]
	if !ok {
		return nil, nil, fmt.Errorf("unknown kv_mode %q", conf.KV.Mode)
	}
	store, err := newStore(m)
	if err != nil {
		return nil, nil, err
	}

	newLocker, ok := lockregistry.NewFuncs[conf.Lock.Type]
	if !ok {
		store.Close()
		return nil, nil, fmt.Errorf("unknown lock_type %q", conf.Lock.Type)
	}
	locker, err := newLocker(m)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	sessions, err := session.NewManager(store, conf.Repo.SessionDirPath)
	if err != nil {
		store.Close()
		locker.Close()
		return nil, nil, err
	}

	sw := sweeper.New(sessions, locker, conf.Repo.RepositoryDirPath,
		time.Duration(conf.KV.MaxSeconds)*time.Second,
		time.Duration(conf.Lock.SweepSeconds)*time.Second,
		time.Duration(conf.Sweeper.IntervalSeconds)*time.Second)
	closer := func() {
		locker.Close()
		store.Close()
	}
	return sw, closer, nil
}
