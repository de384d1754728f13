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

// Package global defines the contract HTTP services implement and the
// registry the server assembles them from.
package global

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewService creates a service from its flattened config map.
type NewService func(conf map[string]interface{}, log *zerolog.Logger) (Service, error)

// Services is the global service registry, filled by init functions in
// the service packages.
var Services = map[string]NewService{}

// Register adds a new HTTP service to the registry.
func Register(name string, f NewService) {
	Services[name] = f
}

// Service is an HTTP service mounted under its prefix.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
	// Unprotected lists prefix-relative paths reachable without a
	// bearer token.
	Unprotected() []string
}

// Middleware wraps the assembled handler. Priority orders the chain,
// highest outermost.
type Middleware func(h http.Handler) http.Handler

// NewMiddleware creates a middleware from its flattened config map.
type NewMiddleware func(conf map[string]interface{}) (Middleware, int, error)

// NewMiddlewares is the global middleware registry.
var NewMiddlewares = map[string]NewMiddleware{}

// RegisterMiddleware adds a new HTTP middleware to the registry.
func RegisterMiddleware(name string, f NewMiddleware) {
	NewMiddlewares[name] = f
}
