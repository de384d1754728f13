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

// Package sqlite implements the KV store on an embedded SQL file.
//
// The session mapping is stored as one JSON-serialized value per
// upload id and rewritten on each field update. Concurrent writers to
// the same key would race, but the upload protocol guarantees a single
// active writer per session, so no row locking is needed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	// Provides sqlite drivers.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv"
	"github.com/rcsb/depot/pkg/kv/registry"
)

func init() {
	registry.Register("sqlite", New)
}

type config struct {
	FilePath         string `mapstructure:"kv_file_path"`
	SessionTableName string `mapstructure:"kv_session_table_name"`
	MapTableName     string `mapstructure:"kv_map_table_name"`
}

func (c *config) init() {
	if c.SessionTableName == "" {
		c.SessionTableName = "sessions"
	}
	if c.MapTableName == "" {
		c.MapTableName = "map"
	}
}

type store struct {
	db           *sql.DB
	sessionTable string
	mapTable     string
}

// New returns a KV store backed by a sqlite file.
func New(m map[string]interface{}) (kv.Store, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "sqlite: error decoding conf")
	}
	c.init()
	if c.FilePath == "" {
		return nil, errors.New("sqlite: kv_file_path not set")
	}

	if err := os.MkdirAll(filepath.Dir(c.FilePath), 0755); err != nil {
		return nil, errors.Wrap(err, "sqlite: error creating db directory")
	}

	db, err := sql.Open("sqlite3", c.FilePath+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: error opening db")
	}

	s := &store{db: db, sessionTable: c.SessionTableName, mapTable: c.MapTableName}
	for _, table := range []string{s.sessionTable, s.mapTable} {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, value TEXT, mtime INTEGER)", table)
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.Wrap(err, "sqlite: error creating table")
		}
	}
	return s, nil
}

func (s *store) Sessions() kv.Sessions { return &sessions{s} }
func (s *store) Map() kv.Map           { return &filemap{s} }

func (s *store) Close() error { return s.db.Close() }

func (s *store) SessionIDs(ctx context.Context) ([]string, error) {
	return s.keys(ctx, s.sessionTable)
}

func (s *store) ClearTable(ctx context.Context, table string) error {
	name, err := s.tableName(table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q", name)); err != nil {
		return errors.Wrap(err, "sqlite: error clearing table")
	}
	return nil
}

func (s *store) tableName(logical string) (string, error) {
	switch logical {
	case kv.TableSessions:
		return s.sessionTable, nil
	case kv.TableMap:
		return s.mapTable, nil
	default:
		return "", errtypes.BadRequest("unknown table " + logical)
	}
}

func (s *store) keys(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT key FROM %q", table))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: error listing keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "sqlite: error scanning key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *store) getRow(ctx context.Context, table, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %q WHERE key=?", table), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errtypes.NotFound(key)
	}
	if err != nil {
		return "", errors.Wrap(err, "sqlite: error selecting row")
	}
	return value, nil
}

func (s *store) setRow(ctx context.Context, table, key, value string) error {
	stmt := fmt.Sprintf("INSERT INTO %q (key, value, mtime) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=?, mtime=?", table)
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, stmt, key, value, now, value, now); err != nil {
		return errors.Wrap(err, "sqlite: error upserting row")
	}
	return nil
}

func (s *store) deleteRow(ctx context.Context, table, key string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE key=?", table), key); err != nil {
		return errors.Wrap(err, "sqlite: error deleting row")
	}
	return nil
}

type sessions struct {
	s *store
}

func (m *sessions) load(ctx context.Context, id string) (map[string]string, error) {
	raw, err := m.s.getRow(ctx, m.s.sessionTable, id)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, errors.Wrap(err, "sqlite: corrupt session row")
	}
	return fields, nil
}

func (m *sessions) save(ctx context.Context, id string, fields map[string]string) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "sqlite: error serializing session row")
	}
	return m.s.setRow(ctx, m.s.sessionTable, id, string(raw))
}

func (m *sessions) Get(ctx context.Context, id, field string) (string, error) {
	fields, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	v, ok := fields[field]
	if !ok {
		return "", errtypes.NotFound(id + "." + field)
	}
	return v, nil
}

func (m *sessions) Set(ctx context.Context, id, field, value string) error {
	fields, err := m.load(ctx, id)
	if err != nil {
		if _, ok := err.(errtypes.IsNotFound); !ok {
			return err
		}
		fields = map[string]string{}
	}
	fields[field] = value
	return m.save(ctx, id, fields)
}

func (m *sessions) GetAll(ctx context.Context, id string) (map[string]string, error) {
	return m.load(ctx, id)
}

func (m *sessions) Delete(ctx context.Context, id string) error {
	return m.s.deleteRow(ctx, m.s.sessionTable, id)
}

func (m *sessions) DeleteField(ctx context.Context, id, field string) error {
	fields, err := m.load(ctx, id)
	if err != nil {
		if _, ok := err.(errtypes.IsNotFound); ok {
			return nil
		}
		return err
	}
	delete(fields, field)
	return m.save(ctx, id, fields)
}

type filemap struct {
	s *store
}

func (m *filemap) Get(ctx context.Context, key string) (string, error) {
	return m.s.getRow(ctx, m.s.mapTable, key)
}

func (m *filemap) Set(ctx context.Context, key, value string) error {
	return m.s.setRow(ctx, m.s.mapTable, key, value)
}

func (m *filemap) Delete(ctx context.Context, key string) error {
	return m.s.deleteRow(ctx, m.s.mapTable, key)
}

func (m *filemap) DeleteValue(ctx context.Context, value string) error {
	if _, err := m.s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE value=?", m.s.mapTable), value); err != nil {
		return errors.Wrap(err, "sqlite: error deleting by value")
	}
	return nil
}

func (m *filemap) Keys(ctx context.Context) ([]string, error) {
	return m.s.keys(ctx, m.s.mapTable)
}
