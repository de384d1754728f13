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

// Package redis implements the lock contract on the remote hash
// server. One hash per lock key encodes modality (-1 writer, 0 free,
// >0 reader count), the owner record and a waitlist marker that keeps
// new readers from starving a queued writer.
//
// Acquisition replaces the directory scan of the file-based drivers
// with atomic HINCRBY operations on the modality field. A short
// second-traversal wait after a provisional writer grant detects two
// writers that both observed modality 0; the losing side rolls back.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
	kvredis "github.com/rcsb/depot/pkg/kv/redis"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/lock/registry"
)

func init() {
	registry.Register("redis", New)
}

type config struct {
	Host          string `mapstructure:"redis_host"`
	Port          int    `mapstructure:"redis_port"`
	Username      string `mapstructure:"redis_username"`
	Password      string `mapstructure:"redis_password"`
	LockTableName string `mapstructure:"kv_lock_table_name"`
	SecondWait    int64  `mapstructure:"lock_second_wait"`
}

type driver struct {
	pool       *redis.Pool
	prefix     string
	secondWait time.Duration
}

// New returns a redis lock driver from a configuration map.
func New(m map[string]interface{}) (lock.Locker, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "redislock: error decoding conf")
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.LockTableName == "" {
		c.LockTableName = "lockv"
	}
	if c.SecondWait == 0 {
		c.SecondWait = 2
	}

	return &driver{
		pool:       kvredis.NewPool(fmt.Sprintf("%s:%d", c.Host, c.Port), c.Username, c.Password),
		prefix:     c.LockTableName + ":",
		secondWait: time.Duration(c.SecondWait) * time.Second,
	}, nil
}

func (d *driver) Close() error { return d.pool.Close() }

func (d *driver) Acquire(ctx context.Context, key string, mode lock.Mode, timeout time.Duration) (*lock.Held, error) {
	if mode == lock.Exclusive {
		return d.acquireExclusive(ctx, key, timeout)
	}
	return d.acquireShared(ctx, key, timeout)
}

func (d *driver) acquireShared(ctx context.Context, key string, timeout time.Duration) (*lock.Held, error) {
	deadline := deadlineOf(timeout)
	rkey := d.prefix + key

	for {
		conn := d.pool.Get()

		waitlist, err := redis.String(conn.Do("HGET", rkey, "waitlist"))
		if err != nil && err != redis.ErrNil {
			conn.Close()
			return nil, errors.Wrap(err, "redislock: error reading waitlist")
		}
		if waitlist != "" {
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		n, err := redis.Int64(conn.Do("HINCRBY", rkey, "modality", 1))
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "redislock: error incrementing modality")
		}
		if n <= 0 {
			// A writer holds the lock; roll back.
			if _, err := conn.Do("HINCRBY", rkey, "modality", -1); err != nil {
				conn.Close()
				return nil, errors.Wrap(err, "redislock: error rolling back modality")
			}
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		_, err = conn.Do("HSET", rkey, "mtime", time.Now().Unix())
		conn.Close()
		if err != nil {
			return nil, errors.Wrap(err, "redislock: error touching record")
		}

		return lock.NewHeld(func() error { return d.release(rkey, lock.Shared) }), nil
	}
}

func (d *driver) acquireExclusive(ctx context.Context, key string, timeout time.Duration) (*lock.Held, error) {
	deadline := deadlineOf(timeout)
	rkey := d.prefix + key
	uid := fmt.Sprintf("%d", time.Now().UnixNano())
	rec := lock.NewRecord()

	queued := false
	unqueue := func() {
		if !queued {
			return
		}
		conn := d.pool.Get()
		// Only clear the marker this attempt installed.
		if w, err := redis.String(conn.Do("HGET", rkey, "waitlist")); err == nil && w == uid {
			_, _ = conn.Do("HDEL", rkey, "waitlist")
		}
		conn.Close()
		queued = false
	}

	for {
		conn := d.pool.Get()

		cur, err := redis.Int64(conn.Do("HGET", rkey, "modality"))
		if err == redis.ErrNil {
			cur = 0
		} else if err != nil {
			conn.Close()
			unqueue()
			return nil, errors.Wrap(err, "redislock: error reading modality")
		}

		if cur > 0 {
			// Readers hold the lock: queue on the waitlist so new
			// readers defer, then wait for the count to drain.
			if !queued {
				set, err := redis.Int(conn.Do("HSETNX", rkey, "waitlist", uid))
				if err != nil {
					conn.Close()
					return nil, errors.Wrap(err, "redislock: error installing waitlist marker")
				}
				queued = set == 1
			}
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				unqueue()
				return nil, err
			}
			continue
		}

		if cur < 0 {
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				unqueue()
				return nil, err
			}
			continue
		}

		// Free: take it provisionally.
		n, err := redis.Int64(conn.Do("HINCRBY", rkey, "modality", -1))
		if err != nil {
			conn.Close()
			unqueue()
			return nil, errors.Wrap(err, "redislock: error decrementing modality")
		}
		if n != -1 {
			// Simultaneous peer; roll back and retry.
			_, _ = conn.Do("HINCRBY", rkey, "modality", 1)
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				unqueue()
				return nil, err
			}
			continue
		}
		conn.Close()

		// Mandatory second traversal: both writers may have observed
		// modality 0 before either decrement landed.
		time.Sleep(d.secondWait)

		conn = d.pool.Get()
		check, err := redis.Int64(conn.Do("HGET", rkey, "modality"))
		if err != nil {
			conn.Close()
			unqueue()
			return nil, errors.Wrap(err, "redislock: error re-reading modality")
		}
		if check != -1 {
			_, _ = conn.Do("HINCRBY", rkey, "modality", 1)
			conn.Close()
			if err := wait(ctx, key, deadline); err != nil {
				unqueue()
				return nil, err
			}
			continue
		}

		_, err = conn.Do("HSET", rkey,
			"host", rec.Hostname,
			"pid", rec.Pid,
			"start", rec.StartTime,
			"mtime", time.Now().Unix(),
		)
		if err == nil && queued {
			if w, werr := redis.String(conn.Do("HGET", rkey, "waitlist")); werr == nil && w == uid {
				_, err = conn.Do("HDEL", rkey, "waitlist")
			}
			queued = false
		}
		conn.Close()
		if err != nil {
			return nil, errors.Wrap(err, "redislock: error writing owner record")
		}

		return lock.NewHeld(func() error { return d.release(rkey, lock.Exclusive) }), nil
	}
}

func (d *driver) release(rkey string, mode lock.Mode) error {
	conn := d.pool.Get()
	defer conn.Close()

	delta := -1
	if mode == lock.Exclusive {
		delta = 1
	}
	n, err := redis.Int64(conn.Do("HINCRBY", rkey, "modality", delta))
	if err != nil {
		return errors.Wrap(err, "redislock: error releasing")
	}
	if n == 0 {
		if w, err := redis.String(conn.Do("HGET", rkey, "waitlist")); err == nil && w != "" {
			// A writer is queued; keep the record so its marker
			// survives until it takes the lock.
			_, _ = conn.Do("HDEL", rkey, "host", "pid", "start")
			return nil
		}
		_, _ = conn.Do("DEL", rkey)
	}
	return nil
}

// Cleanup implements lock.Locker.
func (d *driver) Cleanup(ctx context.Context, maxAge time.Duration, all bool) error {
	conn := d.pool.Get()
	defer conn.Close()

	cutoff := time.Now().Add(-maxAge).Unix()
	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", d.prefix+"*", "COUNT", 100))
		if err != nil {
			return errors.Wrap(err, "redislock: error scanning keys")
		}
		var batch []string
		if _, err := redis.Scan(values, &cursor, &batch); err != nil {
			return errors.Wrap(err, "redislock: error parsing scan reply")
		}

		for _, rkey := range batch {
			if !all {
				mtime, err := redis.Int64(conn.Do("HGET", rkey, "mtime"))
				if err == nil && mtime > cutoff {
					continue
				}
			}
			rec := lock.Record{}
			if fields, err := redis.StringMap(conn.Do("HGETALL", rkey)); err == nil {
				rec.Hostname = fields["host"]
				fmt.Sscanf(fields["pid"], "%d", &rec.Pid)
			}
			_ = lock.SignalOwner(rec)
			if _, err := conn.Do("DEL", rkey); err != nil {
				return errors.Wrap(err, "redislock: error deleting record")
			}
		}

		if cursor == 0 {
			return nil
		}
	}
}

func deadlineOf(timeout time.Duration) time.Time {
	if timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func wait(ctx context.Context, key string, deadline time.Time) error {
	if !deadline.IsZero() && time.Now().After(deadline) {
		return errtypes.LockTimeout(key)
	}
	select {
	case <-ctx.Done():
		return errtypes.LockTimeout(key + ": " + ctx.Err().Error())
	case <-time.After(lock.PollInterval):
		return nil
	}
}
