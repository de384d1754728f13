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

// Package logger builds the process-wide zerolog logger from config.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Conf selects level, output and rendering mode of the logger.
type Conf struct {
	Level  string `mapstructure:"level"`
	Mode   string `mapstructure:"mode"`   // "console" or "json"
	Output string `mapstructure:"output"` // file path, empty means stderr
}

// New returns a zerolog logger configured from c. The pid is attached
// to every event because several worker processes share one log sink.
func New(c *Conf) (*zerolog.Logger, error) {
	if c == nil {
		c = &Conf{}
	}

	lvl := zerolog.InfoLevel
	if c.Level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(c.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "logger: unknown level %q", c.Level)
		}
	}

	var w io.Writer = os.Stderr
	if c.Output != "" {
		if err := os.MkdirAll(filepath.Dir(c.Output), 0755); err != nil {
			return nil, errors.Wrap(err, "logger: error creating output directory")
		}
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "logger: error opening output file")
		}
		w = f
	}

	if c.Mode == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	l := zerolog.New(w).With().Timestamp().Int("pid", os.Getpid()).Logger().Level(lvl)
	return &l, nil
}
