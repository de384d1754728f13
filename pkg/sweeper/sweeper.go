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

// Package sweeper removes expired upload sessions and stale lock
// records. The placeholder file is the single source of truth: its
// mtime defines the session age and its name encodes the temp file
// and KV rows to remove.
//
// Several worker processes run on one host; an flock on a guard file
// in the session directory makes sure only one of them sweeps at a
// time.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/session"
)

// guardFile is the flock target inside the session directory.
const guardFile = ".sweep.lock"

// Sweeper periodically cleans placeholders, temp files, KV rows and
// lock records.
type Sweeper struct {
	sessions *session.Manager
	locker   lock.Locker
	repoRoot string
	maxAge   time.Duration // session expiry
	lockAge  time.Duration // lock record expiry
	interval time.Duration
}

// New returns a sweeper.
func New(sessions *session.Manager, locker lock.Locker, repoRoot string, maxAge, lockAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		locker:   locker,
		repoRoot: repoRoot,
		maxAge:   maxAge,
		lockAge:  lockAge,
		interval: interval,
	}
}

// Startup makes sure the repository, session and lock directories
// exist.
func Startup(perm os.FileMode, dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, perm); err != nil {
			return errors.Wrapf(err, "sweeper: error creating directory %s", d)
		}
	}
	return nil
}

// Run sweeps on the configured interval until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := appctx.GetLogger(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Sweep(ctx, false); err != nil {
				log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Shutdown sweeps everything regardless of age.
func (s *Sweeper) Shutdown(ctx context.Context) error {
	return s.Sweep(ctx, true)
}

// Sweep removes expired sessions and stale locks. With all set, age
// is ignored and everything goes.
func (s *Sweeper) Sweep(ctx context.Context, all bool) error {
	log := appctx.GetLogger(ctx)

	guard := flock.New(filepath.Join(s.sessions.Dir(), guardFile))
	got, err := guard.TryLock()
	if err != nil {
		return errors.Wrap(err, "sweeper: error acquiring guard lock")
	}
	if !got {
		// Another process on this host is already sweeping.
		return nil
	}
	defer func() {
		if err := guard.Unlock(); err != nil {
			log.Error().Err(err).Msg("error releasing sweep guard")
		}
	}()

	if err := s.sweepSessions(ctx, all); err != nil {
		return err
	}
	return s.locker.Cleanup(ctx, s.lockAge, all)
}

func (s *Sweeper) sweepSessions(ctx context.Context, all bool) error {
	log := appctx.GetLogger(ctx)

	entries, err := os.ReadDir(s.sessions.Dir())
	if err != nil {
		return errors.Wrap(err, "sweeper: error reading session directory")
	}

	cutoff := time.Now().Add(-s.maxAge)
	for _, de := range entries {
		if de.IsDir() || de.Name() == guardFile {
			continue
		}
		repoType, depID, uploadID, err := session.ParsePlaceholder(de.Name())
		if err != nil {
			log.Warn().Str("name", de.Name()).Msg("foreign file in session directory")
			continue
		}
		if !all {
			fi, err := de.Info()
			if err != nil {
				continue
			}
			if fi.ModTime().After(cutoff) {
				continue
			}
		}

		tempPath := filepath.Join(s.repoRoot, repoType, depID, session.TempFileName(uploadID))
		if err := s.sessions.Close(ctx, tempPath, true, "", uploadID, repoType, depID); err != nil {
			log.Error().Err(err).Str("uploadId", uploadID).Msg("error sweeping session")
			continue
		}
		log.Info().
			Str("uploadId", uploadID).
			Str("depId", depID).
			Msg("swept expired upload session")
	}
	return nil
}
