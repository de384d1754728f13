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

// Package cors handles cross-origin resource sharing headers.
package cors

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/rcsb/depot/pkg/rhttp/global"
)

func init() {
	global.RegisterMiddleware("cors", New)
}

type config struct {
	Priority         int      `mapstructure:"priority"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// New returns the CORS middleware.
func New(m map[string]interface{}) (global.Middleware, int, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, 0, errors.Wrap(err, "cors: error decoding conf")
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Authorization", "Content-Type", "Rcsb-Hash-Type", "Rcsb-Hexdigest"}
	}

	mw := cors.New(cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		AllowCredentials: c.AllowCredentials,
	})
	return mw.Handler, c.Priority, nil
}
