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

package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "deposit~D_800001_model_P1.cif.V1", Key("deposit", "D_800001_model_P1.cif.V1"))
}

func TestEncodeDecodeName(t *testing.T) {
	// the key contains the separator, so names must parse from the
	// right
	name := EncodeName("deposit~f.cif.V1", "W", "abc123")
	key, mode, uid, err := DecodeName(name)
	require.NoError(t, err)
	assert.Equal(t, "deposit~f.cif.V1", key)
	assert.Equal(t, "W", mode)
	assert.Equal(t, "abc123", uid)

	for _, bad := range []string{"", "nokey", "key~X~uid", "key~W~"} {
		_, _, _, err := DecodeName(bad)
		require.Error(t, err, bad)
	}
}

func TestWriteObserveEntries(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecord()

	_, err := WriteEntry(dir, "deposit~f.cif.V1", "R", "uid1", rec)
	require.NoError(t, err)
	_, err = WriteEntry(dir, "deposit~f.cif.V1", "W", "uid2", rec)
	require.NoError(t, err)
	_, err = WriteEntry(dir, "deposit~g.cif.V1", "R", "uid3", rec)
	require.NoError(t, err)

	// own attempts are excluded from observation
	entries, err := Observe(dir, "deposit~f.cif.V1", "uid1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "W", entries[0].Mode)
	assert.Equal(t, "uid2", entries[0].UID)

	// records of other keys never show up
	entries, err = Observe(dir, "deposit~f.cif.V1", "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	all, err := ListEntries(dir)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadEntryRecord(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecord()

	p, err := WriteEntry(dir, "deposit~f.cif.V1", "W", "uid1", rec)
	require.NoError(t, err)

	got, err := ReadEntryRecord(p)
	require.NoError(t, err)
	assert.Equal(t, rec.Pid, got.Pid)
	assert.Equal(t, rec.Hostname, got.Hostname)
}

func TestHeldReleaseIdempotent(t *testing.T) {
	calls := 0
	h := NewHeld(func() error { calls++; return nil })
	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	assert.Equal(t, 1, calls)
}

func TestModeToken(t *testing.T) {
	assert.Equal(t, "R", Shared.Token())
	assert.Equal(t, "W", Exclusive.Token())
}
