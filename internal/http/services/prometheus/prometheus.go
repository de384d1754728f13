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

// Package prometheus exposes the process metrics endpoint.
package prometheus

import (
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/rhttp/global"
)

func init() {
	global.Register("prometheus", New)
}

type config struct {
	Prefix string `mapstructure:"prefix"`
}

type svc struct {
	prefix  string
	handler http.Handler
}

// New returns the metrics service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "prometheus: error decoding conf")
	}
	if c.Prefix == "" {
		c.Prefix = "metrics"
	}
	return &svc{prefix: c.Prefix, handler: promhttp.Handler()}, nil
}

func (s *svc) Prefix() string { return s.prefix }

func (s *svc) Handler() http.Handler { return s.handler }

func (s *svc) Unprotected() []string { return []string{"/"} }

func (s *svc) Close() error { return nil }
