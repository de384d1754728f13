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

// Package redis implements the KV store on a remote in-memory hash
// server. Sessions map to one hash per upload id with native field
// operations; Map entries are plain string-valued keys. All worker
// processes must point at the same server instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv"
	"github.com/rcsb/depot/pkg/kv/registry"
)

func init() {
	registry.Register("redis", New)
}

type config struct {
	Host             string `mapstructure:"redis_host"`
	Port             int    `mapstructure:"redis_port"`
	Username         string `mapstructure:"redis_username"`
	Password         string `mapstructure:"redis_password"`
	SessionTableName string `mapstructure:"kv_session_table_name"`
	MapTableName     string `mapstructure:"kv_map_table_name"`
}

func (c *config) init() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.SessionTableName == "" {
		c.SessionTableName = "sessions"
	}
	if c.MapTableName == "" {
		c.MapTableName = "map"
	}
}

type store struct {
	pool          *redis.Pool
	sessionPrefix string
	mapPrefix     string
}

// NewPool builds a redigo pool for the given address and credentials.
func NewPool(address, username, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     50,
		MaxActive:   1000,
		IdleTimeout: 240 * time.Second,

		Dial: func() (redis.Conn, error) {
			var c redis.Conn
			var err error
			switch {
			case username != "":
				c, err = redis.Dial("tcp", address,
					redis.DialUsername(username),
					redis.DialPassword(password),
				)
			case password != "":
				c, err = redis.Dial("tcp", address,
					redis.DialPassword(password),
				)
			default:
				c, err = redis.Dial("tcp", address)
			}
			if err != nil {
				return nil, err
			}
			return c, err
		},

		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

// New returns a KV store backed by a remote redis server.
func New(m map[string]interface{}) (kv.Store, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "redis: error decoding conf")
	}
	c.init()

	address := fmt.Sprintf("%s:%d", c.Host, c.Port)
	return &store{
		pool:          NewPool(address, c.Username, c.Password),
		sessionPrefix: c.SessionTableName + ":",
		mapPrefix:     c.MapTableName + ":",
	}, nil
}

func (s *store) Sessions() kv.Sessions { return &sessions{s} }
func (s *store) Map() kv.Map           { return &filemap{s} }

func (s *store) Close() error { return s.pool.Close() }

func (s *store) SessionIDs(ctx context.Context) ([]string, error) {
	return s.scanKeys(s.sessionPrefix)
}

func (s *store) ClearTable(ctx context.Context, table string) error {
	var prefix string
	switch table {
	case kv.TableSessions:
		prefix = s.sessionPrefix
	case kv.TableMap:
		prefix = s.mapPrefix
	default:
		return errtypes.BadRequest("unknown table " + table)
	}

	keys, err := s.scanKeys(prefix)
	if err != nil {
		return err
	}

	conn := s.pool.Get()
	defer conn.Close()
	for _, k := range keys {
		if _, err := conn.Do("DEL", prefix+k); err != nil {
			return errors.Wrap(err, "redis: error deleting key")
		}
	}
	return nil
}

// scanKeys returns all keys with the given prefix, prefix stripped.
func (s *store) scanKeys(prefix string) ([]string, error) {
	conn := s.pool.Get()
	defer conn.Close()

	var keys []string
	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", prefix+"*", "COUNT", 100))
		if err != nil {
			return nil, errors.Wrap(err, "redis: error scanning keys")
		}
		var batch []string
		if _, err := redis.Scan(values, &cursor, &batch); err != nil {
			return nil, errors.Wrap(err, "redis: error parsing scan reply")
		}
		for _, k := range batch {
			keys = append(keys, k[len(prefix):])
		}
		if cursor == 0 {
			return keys, nil
		}
	}
}

type sessions struct {
	s *store
}

func (m *sessions) Get(ctx context.Context, id, field string) (string, error) {
	conn := m.s.pool.Get()
	defer conn.Close()

	v, err := redis.String(conn.Do("HGET", m.s.sessionPrefix+id, field))
	if err == redis.ErrNil {
		return "", errtypes.NotFound(id + "." + field)
	}
	if err != nil {
		return "", errors.Wrap(err, "redis: error getting field")
	}
	return v, nil
}

func (m *sessions) Set(ctx context.Context, id, field, value string) error {
	conn := m.s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("HSET", m.s.sessionPrefix+id, field, value); err != nil {
		return errors.Wrap(err, "redis: error setting field")
	}
	return nil
}

func (m *sessions) GetAll(ctx context.Context, id string) (map[string]string, error) {
	conn := m.s.pool.Get()
	defer conn.Close()

	fields, err := redis.StringMap(conn.Do("HGETALL", m.s.sessionPrefix+id))
	if err != nil {
		return nil, errors.Wrap(err, "redis: error getting hash")
	}
	if len(fields) == 0 {
		return nil, errtypes.NotFound(id)
	}
	return fields, nil
}

func (m *sessions) Delete(ctx context.Context, id string) error {
	conn := m.s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", m.s.sessionPrefix+id); err != nil {
		return errors.Wrap(err, "redis: error deleting hash")
	}
	return nil
}

func (m *sessions) DeleteField(ctx context.Context, id, field string) error {
	conn := m.s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("HDEL", m.s.sessionPrefix+id, field); err != nil {
		return errors.Wrap(err, "redis: error deleting field")
	}
	return nil
}

type filemap struct {
	s *store
}

func (m *filemap) Get(ctx context.Context, key string) (string, error) {
	conn := m.s.pool.Get()
	defer conn.Close()

	v, err := redis.String(conn.Do("GET", m.s.mapPrefix+key))
	if err == redis.ErrNil {
		return "", errtypes.NotFound(key)
	}
	if err != nil {
		return "", errors.Wrap(err, "redis: error getting key")
	}
	return v, nil
}

func (m *filemap) Set(ctx context.Context, key, value string) error {
	conn := m.s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", m.s.mapPrefix+key, value); err != nil {
		return errors.Wrap(err, "redis: error setting key")
	}
	return nil
}

func (m *filemap) Delete(ctx context.Context, key string) error {
	conn := m.s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", m.s.mapPrefix+key); err != nil {
		return errors.Wrap(err, "redis: error deleting key")
	}
	return nil
}

func (m *filemap) DeleteValue(ctx context.Context, value string) error {
	keys, err := m.s.scanKeys(m.s.mapPrefix)
	if err != nil {
		return err
	}

	conn := m.s.pool.Get()
	defer conn.Close()
	for _, k := range keys {
		v, err := redis.String(conn.Do("GET", m.s.mapPrefix+k))
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "redis: error getting key")
		}
		if v == value {
			if _, err := conn.Do("DEL", m.s.mapPrefix+k); err != nil {
				return errors.Wrap(err, "redis: error deleting key")
			}
		}
	}
	return nil
}

func (m *filemap) Keys(ctx context.Context) ([]string, error) {
	return m.s.scanKeys(m.s.mapPrefix)
}
