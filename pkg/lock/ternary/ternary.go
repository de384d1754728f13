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

// Package ternary implements the file-based lock with a third,
// internal transitory mode. A writer that finds readers installs a
// transitory marker and queues behind them; readers observing the
// marker defer, so an endless stream of readers cannot starve the
// writer. Once the readers drain, the marker is promoted to an
// exclusive record.
package ternary

import (
	"context"
	"os"
	"time"

	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/lock/registry"
	"github.com/rcsb/depot/pkg/lock/soft"
)

func init() {
	registry.Register("ternary", New)
}

type driver struct {
	*soft.Driver
}

// New returns a ternary lock driver from a configuration map.
func New(m map[string]interface{}) (lock.Locker, error) {
	d, err := soft.NewDriver(m)
	if err != nil {
		return nil, err
	}
	return &driver{d}, nil
}

// Acquire implements lock.Locker. Shared acquisition is inherited
// from the soft driver; readers there already defer to transitory
// markers.
func (d *driver) Acquire(ctx context.Context, key string, mode lock.Mode, timeout time.Duration) (*lock.Held, error) {
	if mode == lock.Shared {
		return d.Driver.Acquire(ctx, key, mode, timeout)
	}
	return d.acquireExclusive(ctx, key, timeout)
}

func (d *driver) acquireExclusive(ctx context.Context, key string, timeout time.Duration) (*lock.Held, error) {
	uid := soft.NewUID()
	deadline := soft.Deadline(timeout)
	rec := lock.NewRecord()
	dir := d.Dir()

	var marker string // own transitory record, once queued
	var own string    // own exclusive record, once promoted
	cleanup := func() {
		for _, p := range []string{marker, own} {
			if p != "" {
				os.Remove(p)
			}
		}
		marker, own = "", ""
	}

	for {
		entries, err := lock.Observe(dir, key, uid)
		if err != nil {
			cleanup()
			return nil, err
		}

		if outranked(entries, uid) {
			// A smaller-uid peer ranks first; back off so it can
			// observe an empty field.
			cleanup()
			if err := soft.Wait(ctx, key, deadline); err != nil {
				return nil, err
			}
			continue
		}

		if own == "" {
			if readers(entries) {
				// Queue behind the readers; the marker keeps new ones
				// out without claiming the lock.
				if marker == "" {
					marker, err = lock.WriteEntry(dir, key, lock.Transitory, uid, rec)
					if err != nil {
						return nil, err
					}
				}
				if err := soft.Wait(ctx, key, deadline); err != nil {
					cleanup()
					return nil, err
				}
				continue
			}
			// Readers drained: promote the marker to exclusive.
			own, err = lock.WriteEntry(dir, key, lock.Exclusive.Token(), uid, rec)
			if err != nil {
				cleanup()
				return nil, err
			}
			if marker != "" {
				os.Remove(marker)
				marker = ""
			}
			// Second traversal: let a simultaneous peer show up.
			time.Sleep(d.SecondWait())
			continue
		}

		// Grant only once this record is alone. A larger-uid peer or
		// the current holder releases or backs off on its own.
		if readers(entries) || writersPresent(entries) {
			if err := soft.Wait(ctx, key, deadline); err != nil {
				cleanup()
				return nil, err
			}
			continue
		}

		p := own
		return lock.NewHeld(func() error {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		}), nil
	}
}

func readers(entries []lock.Entry) bool {
	for _, e := range entries {
		if e.Mode == lock.Shared.Token() {
			return true
		}
	}
	return false
}

// outranked reports whether a competing writer or transitory marker
// with a smaller uid exists.
func outranked(entries []lock.Entry, ownUID string) bool {
	for _, e := range entries {
		if (e.Mode == lock.Exclusive.Token() || e.Mode == lock.Transitory) && e.UID < ownUID {
			return true
		}
	}
	return false
}

// writersPresent reports whether any competing writer record or
// transitory marker exists, whatever its rank.
func writersPresent(entries []lock.Entry) bool {
	for _, e := range entries {
		if e.Mode == lock.Exclusive.Token() || e.Mode == lock.Transitory {
			return true
		}
	}
	return false
}
