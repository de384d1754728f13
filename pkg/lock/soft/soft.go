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

// Package soft implements the lock contract with one small file per
// acquisition in a shared directory. It works across hosts on any
// shared filesystem.
//
// A writer creates its record before being granted; the pending record
// doubles as the waitlist marker that keeps new readers from starving
// the writer. Simultaneous writers resolve by lexicographic uid
// tiebreak after a short second traversal of the directory.
package soft

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/lock/registry"
)

func init() {
	registry.Register("soft", New)
}

type config struct {
	Dir        string `mapstructure:"shared_lock_path"`
	SecondWait int64  `mapstructure:"lock_second_wait"`
}

// Driver is the file-per-acquire lock. It is embedded by the ternary
// driver, which swaps in its own exclusive acquisition.
type Driver struct {
	dir        string
	secondWait time.Duration
}

// New returns a soft lock driver from a configuration map.
func New(m map[string]interface{}) (lock.Locker, error) {
	d, err := NewDriver(m)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewDriver returns the concrete driver, for embedding.
func NewDriver(m map[string]interface{}) (*Driver, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "soft: error decoding conf")
	}
	if c.Dir == "" {
		return nil, errors.New("soft: shared_lock_path not set")
	}
	if c.SecondWait == 0 {
		c.SecondWait = 2
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "soft: error creating lock directory")
	}
	return &Driver{dir: c.Dir, secondWait: time.Duration(c.SecondWait) * time.Second}, nil
}

// Dir returns the shared lock directory.
func (d *Driver) Dir() string { return d.dir }

// SecondWait returns the peer-detection pause.
func (d *Driver) SecondWait() time.Duration { return d.secondWait }

// NewUID mints the per-acquire identity used in record names and
// tiebreaks.
func NewUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Acquire implements lock.Locker.
func (d *Driver) Acquire(ctx context.Context, key string, mode lock.Mode, timeout time.Duration) (*lock.Held, error) {
	if mode == lock.Exclusive {
		return d.acquireExclusive(ctx, key, timeout)
	}
	return d.acquireShared(ctx, key, timeout)
}

// Wait pauses one poll interval, honoring context and deadline.
// A zero deadline means wait forever.
func Wait(ctx context.Context, key string, deadline time.Time) error {
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

// Deadline converts a timeout into an absolute deadline, zero meaning
// wait forever.
func Deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (d *Driver) acquireShared(ctx context.Context, key string, timeout time.Duration) (*lock.Held, error) {
	uid := NewUID()
	deadline := Deadline(timeout)
	rec := lock.NewRecord()

	for {
		entries, err := lock.Observe(d.dir, key, uid)
		if err != nil {
			return nil, err
		}
		if hasWriter(entries) {
			if err := Wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		p, err := lock.WriteEntry(d.dir, key, lock.Shared.Token(), uid, rec)
		if err != nil {
			return nil, err
		}

		// Second traversal: a writer may have installed its record
		// simultaneously. Readers always defer to it.
		time.Sleep(d.secondWait)
		entries, err = lock.Observe(d.dir, key, uid)
		if err != nil {
			os.Remove(p)
			return nil, err
		}
		if hasWriter(entries) {
			os.Remove(p)
			if err := Wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		return lock.NewHeld(func() error { return removeQuiet(p) }), nil
	}
}

func (d *Driver) acquireExclusive(ctx context.Context, key string, timeout time.Duration) (*lock.Held, error) {
	uid := NewUID()
	deadline := Deadline(timeout)
	rec := lock.NewRecord()

	var own string
	cleanup := func() {
		if own != "" {
			os.Remove(own)
			own = ""
		}
	}

	for {
		entries, err := lock.Observe(d.dir, key, uid)
		if err != nil {
			cleanup()
			return nil, err
		}

		if w := winningWriter(entries, uid); w != "" {
			// A peer with a smaller uid ranks first; back off so it
			// can observe an empty field.
			cleanup()
			if err := Wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		if own == "" {
			// Install the record early: it blocks new readers while
			// existing ones drain.
			own, err = lock.WriteEntry(d.dir, key, lock.Exclusive.Token(), uid, rec)
			if err != nil {
				return nil, err
			}
			time.Sleep(d.secondWait)
			continue
		}

		// Grant only once this record is alone: readers must drain and
		// any other writer, current holder included, must disappear.
		// Larger-uid peers back off on their own via the tiebreak.
		if hasReaders(entries) || hasWriter(entries) {
			if err := Wait(ctx, key, deadline); err != nil {
				cleanup()
				return nil, err
			}
			continue
		}

		p := own
		return lock.NewHeld(func() error { return removeQuiet(p) }), nil
	}
}

// Cleanup implements lock.Locker.
func (d *Driver) Cleanup(ctx context.Context, maxAge time.Duration, all bool) error {
	entries, err := lock.ListEntries(d.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !all && e.ModTime.After(cutoff) {
			continue
		}
		if rec, err := lock.ReadEntryRecord(e.Path); err == nil {
			_ = lock.SignalOwner(rec)
		}
		if err := removeQuiet(e.Path); err != nil {
			return err
		}
	}
	return nil
}

// Close implements lock.Locker.
func (d *Driver) Close() error { return nil }

func hasWriter(entries []lock.Entry) bool {
	for _, e := range entries {
		if e.Mode == lock.Exclusive.Token() || e.Mode == lock.Transitory {
			return true
		}
	}
	return false
}

func hasReaders(entries []lock.Entry) bool {
	for _, e := range entries {
		if e.Mode == lock.Shared.Token() {
			return true
		}
	}
	return false
}

// winningWriter returns the uid of a competing writer or transitory
// marker that outranks ownUID, or "" when this attempt ranks first.
func winningWriter(entries []lock.Entry, ownUID string) string {
	for _, e := range entries {
		if (e.Mode == lock.Exclusive.Token() || e.Mode == lock.Transitory) && e.UID < ownUID {
			return e.UID
		}
	}
	return ""
}

func removeQuiet(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "soft: error removing record file")
	}
	return nil
}
