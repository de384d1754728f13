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

package soft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/lock"
)

const testKey = "deposit~D_800001_model_P1.cif.V1"

func newDriver(t *testing.T) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := NewDriver(map[string]interface{}{
		"shared_lock_path": dir,
		"lock_second_wait": int64(1),
	})
	require.NoError(t, err)
	return d, dir
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(map[string]interface{}{})
	require.Error(t, err)
}

func TestSharedAllowsConcurrentReaders(t *testing.T) {
	d, dir := newDriver(t)
	ctx := context.Background()

	h1, err := d.Acquire(ctx, testKey, lock.Shared, 0)
	require.NoError(t, err)
	h2, err := d.Acquire(ctx, testKey, lock.Shared, 0)
	require.NoError(t, err)

	entries, err := lock.ListEntries(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())

	entries, err = lock.ListEntries(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExclusiveBlocksSecondWriter(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	h, err := d.Acquire(ctx, testKey, lock.Exclusive, 0)
	require.NoError(t, err)
	defer h.Release()

	_, err = d.Acquire(ctx, testKey, lock.Exclusive, 1*time.Second)
	require.Error(t, err)
	assert.IsType(t, errtypes.LockTimeout(""), err)
}

func TestReaderDefersToWriter(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	h, err := d.Acquire(ctx, testKey, lock.Exclusive, 0)
	require.NoError(t, err)
	defer h.Release()

	_, err = d.Acquire(ctx, testKey, lock.Shared, 1*time.Second)
	require.Error(t, err)
	assert.IsType(t, errtypes.LockTimeout(""), err)
}

func TestWriterWaitsForReaderDrain(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	reader, err := d.Acquire(ctx, testKey, lock.Shared, 0)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		h, err := d.Acquire(ctx, testKey, lock.Exclusive, 10*time.Second)
		if err == nil {
			h.Release()
		}
		got <- err
	}()

	// the queued writer record keeps new readers out while the old
	// one drains
	time.Sleep(2 * time.Second)
	_, err = d.Acquire(ctx, testKey, lock.Shared, 1*time.Second)
	require.Error(t, err)

	require.NoError(t, reader.Release())
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("writer never acquired after readers drained")
	}
}

func TestIndependentKeysDoNotContend(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	h1, err := d.Acquire(ctx, testKey, lock.Exclusive, 0)
	require.NoError(t, err)
	defer h1.Release()

	h2, err := d.Acquire(ctx, "archive~other.cif.V1", lock.Exclusive, 5*time.Second)
	require.NoError(t, err)
	defer h2.Release()
}

func TestCancelledContextStopsWaiting(t *testing.T) {
	d, _ := newDriver(t)

	h, err := d.Acquire(context.Background(), testKey, lock.Exclusive, 0)
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Acquire(ctx, testKey, lock.Shared, 0)
	require.Error(t, err)
	assert.IsType(t, errtypes.LockTimeout(""), err)
}

func TestCleanup(t *testing.T) {
	d, dir := newDriver(t)
	ctx := context.Background()

	rec := lock.NewRecord()
	_, err := lock.WriteEntry(dir, testKey, "R", "uid1", rec)
	require.NoError(t, err)
	_, err = lock.WriteEntry(dir, testKey, "W", "uid2", rec)
	require.NoError(t, err)

	// young records survive an aged sweep
	require.NoError(t, d.Cleanup(ctx, time.Hour, false))
	entries, err := lock.ListEntries(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// a full sweep removes everything regardless of age
	require.NoError(t, d.Cleanup(ctx, time.Hour, true))
	entries, err = lock.ListEntries(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
