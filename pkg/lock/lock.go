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

// Package lock defines the cross-process advisory lock contract shared
// by the soft, ternary and redis drivers.
//
// A lock is identified by a key derived from the target path,
// {repositoryType}~{filename}, so that readers and writers of the same
// logical file contend regardless of which worker or host serves the
// request. The lock is advisory: correctness rests on all writers
// going through Acquire.
package lock

import (
	"context"
	"os"
	"sync"
	"time"
)

// Mode is the lock mode requested by a holder.
type Mode int

const (
	// Shared allows many concurrent holders.
	Shared Mode = iota
	// Exclusive allows a single holder.
	Exclusive
)

// Token returns the single-letter mode tag used in lock record names.
func (m Mode) Token() string {
	if m == Exclusive {
		return "W"
	}
	return "R"
}

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Transitory is the internal third mode of the ternary driver: a
// writer queued behind readers. It never appears in the public API.
const Transitory = "T"

// Key derives the lock key for a target filename.
func Key(repoType, filename string) string {
	return repoType + "~" + filename
}

// Held represents a granted lock. Release is idempotent; releasing a
// lock that is no longer held is a no-op.
type Held struct {
	release func() error
	once    sync.Once
}

// NewHeld wraps a release function into a Held.
func NewHeld(release func() error) *Held {
	return &Held{release: release}
}

// Release frees the lock.
func (h *Held) Release() error {
	var err error
	h.once.Do(func() { err = h.release() })
	return err
}

// Locker is the contract implemented by all lock drivers.
type Locker interface {
	// Acquire blocks until the lock on key is granted in the given
	// mode or until timeout elapses, in which case it fails with an
	// errtypes.LockTimeout. A timeout of 0 means wait forever.
	Acquire(ctx context.Context, key string, mode Mode, timeout time.Duration) (*Held, error)
	// Cleanup removes lock records older than maxAge (all of them
	// when all is set) and signals co-located stale owners to stop.
	Cleanup(ctx context.Context, maxAge time.Duration, all bool) error
	Close() error
}

// Record identifies the process holding a lock, for stale-owner
// recovery.
type Record struct {
	Hostname  string `json:"hostname"`
	Pid       int    `json:"pid"`
	StartTime int64  `json:"start_time"`
}

// NewRecord returns a Record describing the current process.
func NewRecord() Record {
	host, _ := os.Hostname()
	return Record{
		Hostname:  host,
		Pid:       os.Getpid(),
		StartTime: time.Now().Unix(),
	}
}

// PollInterval is the wait between acquisition attempts.
const PollInterval = 250 * time.Millisecond
