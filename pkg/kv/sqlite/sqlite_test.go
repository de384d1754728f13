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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	s, err := New(map[string]interface{}{
		"kv_file_path": filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRequiresFilePath(t *testing.T) {
	_, err := New(map[string]interface{}{})
	require.Error(t, err)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Sessions().Get(ctx, "u1", "chunkSize")
	require.Error(t, err)
	assert.IsType(t, errtypes.NotFound(""), err)

	require.NoError(t, s.Sessions().Set(ctx, "u1", "chunkSize", "8388608"))
	require.NoError(t, s.Sessions().Set(ctx, "u1", "created", "1700000000"))

	v, err := s.Sessions().Get(ctx, "u1", "chunkSize")
	require.NoError(t, err)
	assert.Equal(t, "8388608", v)

	all, err := s.Sessions().GetAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"chunkSize": "8388608", "created": "1700000000"}, all)

	_, err = s.Sessions().Get(ctx, "u1", "missing")
	require.Error(t, err)
	assert.IsType(t, errtypes.NotFound(""), err)

	require.NoError(t, s.Sessions().DeleteField(ctx, "u1", "created"))
	_, err = s.Sessions().Get(ctx, "u1", "created")
	require.Error(t, err)

	// deleting fields of a missing session is a no-op
	require.NoError(t, s.Sessions().DeleteField(ctx, "ghost", "x"))

	require.NoError(t, s.Sessions().Delete(ctx, "u1"))
	_, err = s.Sessions().GetAll(ctx, "u1")
	require.Error(t, err)

	require.NoError(t, s.Sessions().Delete(ctx, "u1")) // idempotent
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Map().Get(ctx, "deposit_f.cif.V1")
	require.Error(t, err)
	assert.IsType(t, errtypes.NotFound(""), err)

	require.NoError(t, s.Map().Set(ctx, "deposit_f.cif.V1", "u1"))
	require.NoError(t, s.Map().Set(ctx, "deposit_g.cif.V1", "u2"))
	require.NoError(t, s.Map().Set(ctx, "archive_f.cif.V1", "u1"))

	v, err := s.Map().Get(ctx, "deposit_f.cif.V1")
	require.NoError(t, err)
	assert.Equal(t, "u1", v)

	// rebinding replaces the value
	require.NoError(t, s.Map().Set(ctx, "deposit_f.cif.V1", "u9"))
	v, err = s.Map().Get(ctx, "deposit_f.cif.V1")
	require.NoError(t, err)
	assert.Equal(t, "u9", v)

	keys, err := s.Map().Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"deposit_f.cif.V1", "deposit_g.cif.V1", "archive_f.cif.V1"}, keys)

	// DeleteValue removes every binding to the upload id
	require.NoError(t, s.Map().DeleteValue(ctx, "u1"))
	_, err = s.Map().Get(ctx, "archive_f.cif.V1")
	require.Error(t, err)
	_, err = s.Map().Get(ctx, "deposit_g.cif.V1")
	require.NoError(t, err)

	require.NoError(t, s.Map().Delete(ctx, "deposit_g.cif.V1"))
	require.NoError(t, s.Map().Delete(ctx, "deposit_g.cif.V1")) // idempotent
}

func TestSessionIDsAndClearTable(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Sessions().Set(ctx, "u1", "chunkSize", "1"))
	require.NoError(t, s.Sessions().Set(ctx, "u2", "chunkSize", "2"))
	require.NoError(t, s.Map().Set(ctx, "k", "u1"))

	ids, err := s.SessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

	require.NoError(t, s.ClearTable(ctx, kv.TableSessions))
	ids, err = s.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// the map table is untouched
	_, err = s.Map().Get(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, s.ClearTable(ctx, kv.TableMap))
	_, err = s.Map().Get(ctx, "k")
	require.Error(t, err)

	err = s.ClearTable(ctx, "bogus")
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)
}
