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

// Package session manages upload sessions: identity, durable chunk
// progress and the placeholder files the sweeper feeds on.
//
// A session is keyed by an opaque upload id. For resumable uploads the
// Map table binds the filename-derived key to the active id, so a
// returning client recovers its session without knowing the id. The
// placeholder file in the session directory is the single source of
// truth for sweeping: its mtime defines the session age and its name
// encodes which temp file and KV rows belong to it.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv"
)

// FieldChunkSize is the only strictly required session field. The
// logical file tuple is recoverable from the Map entry's key and is
// deliberately not stored here.
const FieldChunkSize = "chunkSize"

// FieldCreated is an ancillary timestamp for diagnostics.
const FieldCreated = "created"

// TempFilePrefix marks in-directory hidden temp files, which live
// beside their eventual target so the final rename stays on one
// filesystem.
const TempFilePrefix = "._"

// Manager owns sessions, their KV rows and their placeholder files.
type Manager struct {
	store      kv.Store
	sessionDir string
}

// NewManager returns a session manager writing placeholders under
// sessionDir.
func NewManager(store kv.Store, sessionDir string) (*Manager, error) {
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, errors.Wrap(err, "session: error creating session directory")
	}
	return &Manager{store: store, sessionDir: sessionDir}, nil
}

// Dir returns the session directory.
func (m *Manager) Dir() string { return m.sessionDir }

// NewID mints an opaque 128-bit hex upload id.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // the kernel RNG does not fail
	}
	return hex.EncodeToString(b[:])
}

// MapKey derives the Map table key for a target filename.
func MapKey(repoType, filename string) string {
	return repoType + "_" + filename
}

// Open returns the upload id for a new or resumed session. When
// resumable, the Map table is consulted for an active session on the
// same target and its id reused; otherwise a fresh id is allocated.
func (m *Manager) Open(ctx context.Context, mapKey string, resumable bool) (uploadID string, resumed bool, err error) {
	if resumable {
		id, err := m.store.Map().Get(ctx, mapKey)
		if err == nil && id != "" {
			return id, true, nil
		}
		if _, ok := err.(errtypes.IsNotFound); err != nil && !ok {
			return "", false, err
		}
	}
	return NewID(), false, nil
}

// RecordChunkSize persists the session chunk size, used later to
// reconstruct progress from the temp file size.
func (m *Manager) RecordChunkSize(ctx context.Context, uploadID string, chunkSize int64) error {
	if err := m.store.Sessions().Set(ctx, uploadID, FieldChunkSize, strconv.FormatInt(chunkSize, 10)); err != nil {
		return err
	}
	return m.store.Sessions().Set(ctx, uploadID, FieldCreated, strconv.FormatInt(time.Now().Unix(), 10))
}

// ChunkSize returns the persisted chunk size of a session.
func (m *Manager) ChunkSize(ctx context.Context, uploadID string) (int64, error) {
	v, err := m.store.Sessions().Get(ctx, uploadID, FieldChunkSize)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "session: corrupt chunkSize field")
	}
	return n, nil
}

// BindTarget inserts the Map entry pointing the filename key at this
// session.
func (m *Manager) BindTarget(ctx context.Context, mapKey, uploadID string) error {
	return m.store.Map().Set(ctx, mapKey, uploadID)
}

// Progress reconstructs the next chunk index from the temp file size.
// An absent temp file means no chunk has arrived yet. Appends are
// crash-safe on ordinary filesystems; a truncated tail only makes the
// index under-count, and the client re-sends that chunk.
func Progress(tempPath string, chunkSize int64) int64 {
	if chunkSize <= 0 {
		return 0
	}
	fi, err := os.Stat(tempPath)
	if err != nil {
		return 0
	}
	return fi.Size() / chunkSize
}

// TempFileName returns the hidden temp filename for an upload id.
func TempFileName(uploadID string) string {
	return TempFilePrefix + uploadID
}

// PlaceholderName composes the placeholder filename.
func PlaceholderName(repoType, depID, uploadID string) string {
	return repoType + "~" + depID + "~" + uploadID
}

// ParsePlaceholder decodes a placeholder filename.
func ParsePlaceholder(name string) (repoType, depID, uploadID string, err error) {
	parts := strings.Split(name, "~")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", errors.Errorf("session: malformed placeholder name %q", name)
	}
	return parts[0], parts[1], parts[2], nil
}

// PlaceholderPath returns the full placeholder path for a session.
func (m *Manager) PlaceholderPath(repoType, depID, uploadID string) string {
	return filepath.Join(m.sessionDir, PlaceholderName(repoType, depID, uploadID))
}

// MakePlaceholder creates (or refreshes) the zero-byte marker file.
// Its mtime is the session age the sweeper measures.
func (m *Manager) MakePlaceholder(repoType, depID, uploadID string) error {
	p := m.PlaceholderPath(repoType, depID, uploadID)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "session: error creating placeholder")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "session: error closing placeholder")
	}
	now := time.Now()
	if err := os.Chtimes(p, now, now); err != nil {
		return errors.Wrap(err, "session: error touching placeholder")
	}
	return nil
}

// RemovePlaceholder removes the marker file; missing files are a
// no-op.
func (m *Manager) RemovePlaceholder(repoType, depID, uploadID string) error {
	err := os.Remove(m.PlaceholderPath(repoType, depID, uploadID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "session: error removing placeholder")
	}
	return nil
}

// Close tears a session down: the temp file and placeholder are
// removed, and for resumable sessions the Sessions row and Map entry
// as well. It runs on both the success and the failure paths of
// finalization, so a failed upload does not leak state.
func (m *Manager) Close(ctx context.Context, tempPath string, resumable bool, mapKey, uploadID, repoType, depID string) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if tempPath != "" {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			keep(errors.Wrap(err, "session: error removing temp file"))
		}
	}
	keep(m.RemovePlaceholder(repoType, depID, uploadID))

	if resumable {
		keep(m.store.Sessions().Delete(ctx, uploadID))
		if mapKey != "" {
			keep(m.store.Map().Delete(ctx, mapKey))
		} else {
			keep(m.store.Map().DeleteValue(ctx, uploadID))
		}
	}
	return firstErr
}
