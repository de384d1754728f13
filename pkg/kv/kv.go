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

// Package kv defines the session/metadata key-value contract shared by
// the embedded sqlite backend and the remote redis backend.
//
// Two logical tables exist. Sessions holds one small field/value
// mapping per upload id. Map binds a filename-derived key to the
// upload id of its active resumable session, at most one per key.
// Expiry is driven by the sweeper, not by the backends.
package kv

import "context"

// Sessions is the per-upload field/value mapping.
type Sessions interface {
	// Get returns the value of one field. Missing keys or fields
	// yield an errtypes.NotFound.
	Get(ctx context.Context, id, field string) (string, error)
	// Set stores one field.
	Set(ctx context.Context, id, field, value string) error
	// GetAll returns the entire mapping for id.
	GetAll(ctx context.Context, id string) (map[string]string, error)
	// Delete removes the whole mapping. Missing keys are a no-op.
	Delete(ctx context.Context, id string) error
	// DeleteField removes one field. Missing fields are a no-op.
	DeleteField(ctx context.Context, id, field string) error
}

// Map is the filename-key to upload-id binding.
type Map interface {
	// Get returns the upload id bound to key, or errtypes.NotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set binds key to value, replacing any previous binding.
	Set(ctx context.Context, key, value string) error
	// Delete removes the binding for key. Missing keys are a no-op.
	Delete(ctx context.Context, key string) error
	// DeleteValue removes every binding whose value equals value.
	DeleteValue(ctx context.Context, value string) error
	// Keys lists all bound keys.
	Keys(ctx context.Context) ([]string, error)
}

// Store is a connected KV backend.
type Store interface {
	Sessions() Sessions
	Map() Map
	// SessionIDs lists all session keys, for sweeping and admin.
	SessionIDs(ctx context.Context) ([]string, error)
	// ClearTable removes all rows of the named logical table
	// ("sessions" or "map").
	ClearTable(ctx context.Context, table string) error
	Close() error
}

// Table names accepted by ClearTable.
const (
	TableSessions = "sessions"
	TableMap      = "map"
)
