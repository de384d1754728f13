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

// Package rhttp assembles the registered HTTP services into one server.
// Each service owns a URL prefix; requests are routed to the service
// with the longest matching prefix and the middleware chain wraps the
// whole mux.
package rhttp

import (
	"context"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/rhttp/global"
)

// Option configures the server.
type Option func(*Server)

// WithServices sets the services to mount, keyed by service name.
func WithServices(services map[string]global.Service) Option {
	return func(s *Server) {
		s.services = services
	}
}

// WithMiddlewares sets the middleware chain, outermost first.
func WithMiddlewares(middlewares []global.Middleware) Option {
	return func(s *Server) {
		s.middlewares = middlewares
	}
}

// WithLogger sets the server logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// InitServices constructs every configured service from the registry.
// conf returns the flattened config map for a service name.
func InitServices(enabled []string, conf func(name string) map[string]interface{}, log *zerolog.Logger) (map[string]global.Service, error) {
	services := make(map[string]global.Service, len(enabled))
	for _, name := range enabled {
		newFunc, ok := global.Services[name]
		if !ok {
			return nil, errors.Errorf("rhttp: http service %s does not exist", name)
		}
		slog := log.With().Str("service", name).Logger()
		svc, err := newFunc(conf(name), &slog)
		if err != nil {
			return nil, errors.Wrapf(err, "rhttp: http service %s could not be started", name)
		}
		services[name] = svc
	}
	return services, nil
}

// Server serves the mounted services.
type Server struct {
	httpServer  *http.Server
	listener    net.Listener
	services    map[string]global.Service // keyed by name
	handlers    map[string]http.Handler   // keyed by prefix
	unprotected []string
	middlewares []global.Middleware
	log         zerolog.Logger
}

// New returns a server with the given options applied.
func New(opts ...Option) *Server {
	s := &Server{
		httpServer:  &http.Server{},
		log:         zerolog.Nop(),
		services:    map[string]global.Service{},
		handlers:    map[string]http.Handler{},
		middlewares: []global.Middleware{},
	}
	for _, o := range opts {
		o(s)
	}
	s.registerServices()
	return s
}

func (s *Server) registerServices() {
	for name, svc := range s.services {
		s.handlers[svc.Prefix()] = svc.Handler()
		for _, u := range svc.Unprotected() {
			s.unprotected = append(s.unprotected, path.Join("/", svc.Prefix(), u))
		}
		s.log.Info().Msgf("http service enabled: %s@/%s", name, svc.Prefix())
	}
}

// Unprotected returns the absolute paths reachable without a token.
func (s *Server) Unprotected() []string {
	return s.unprotected
}

// Start serves on the listener until Stop or GracefulStop is called.
func (s *Server) Start(ln net.Listener) error {
	s.httpServer.Handler = s.buildHandler()
	s.listener = ln
	s.log.Info().Msgf("http server listening at http://%s", ln.Addr())
	err := s.httpServer.Serve(ln)
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Address returns the listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulStop drains in-flight requests, then closes the services.
func (s *Server) GracefulStop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeServices()
	return err
}

func (s *Server) closeServices() {
	for name, svc := range s.services {
		if err := svc.Close(); err != nil {
			s.log.Error().Err(err).Msgf("error closing service %q", name)
		}
	}
}

func cleanURL(u string) string {
	if len(u) > 0 {
		if u[0] != '/' {
			u = "/" + u
		}
		u = strings.TrimRight(u, "/")
	}
	return u
}

func urlHasPrefix(url, prefix string) bool {
	partsURL := strings.Split(cleanURL(url), "/")
	partsPrefix := strings.Split(cleanURL(prefix), "/")
	if len(partsPrefix) > len(partsURL) {
		return false
	}
	for i, p := range partsPrefix {
		if p != partsURL[i] {
			return false
		}
	}
	return true
}

func (s *Server) matchLongestPrefix(url string) (http.Handler, string, bool) {
	var match string
	for k := range s.handlers {
		if urlHasPrefix(url, k) && len(k) > len(match) {
			match = k
		}
	}
	h, ok := s.handlers[match]
	return h, match, ok
}

func (s *Server) buildHandler() http.Handler {
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, prefix, ok := s.matchLongestPrefix(r.URL.Path); ok {
			r.URL.Path = cleanURL(r.URL.Path)[len(cleanURL(prefix)):]
			if r.URL.Path == "" {
				r.URL.Path = "/"
			}
			h.ServeHTTP(w, r)
			return
		}
		s.log.Debug().Msgf("http routing: url=%s svc=not-found", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	handler := http.Handler(root)
	for _, m := range s.middlewares {
		handler = m(handler)
	}
	return handler
}
