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

package downloader

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/repopath"
)

func modelFile(version string) repopath.LogicalFile {
	return repopath.LogicalFile{
		RepositoryType: "deposit",
		DepID:          "D_800001",
		ContentType:    "model",
		Milestone:      "none",
		PartNumber:     1,
		ContentFormat:  "pdbx",
		Version:        version,
	}
}

func newEngine(t *testing.T, content []byte) *Engine {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "deposit", "D_800001")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "D_800001_model_P1.cif.V1"), content, 0644))
	return New(repopath.NewResolver(root), "MD5")
}

func TestOpenWholeFile(t *testing.T) {
	content := []byte("data_block\n_entry.id D_800001\n")
	e := newEngine(t, content)

	rc, info, err := e.Open(context.Background(), modelFile("latest"), "")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	sum := md5.Sum(content)
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V1", info.RelPath)
	assert.EqualValues(t, len(content), info.Size)
	assert.Equal(t, "chemical/x-mmcif", info.MimeType)
	assert.Equal(t, "MD5", info.HashType)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.HexDigest)
}

func TestOpenHashTypeOverride(t *testing.T) {
	content := []byte("hello")
	e := newEngine(t, content)

	rc, info, err := e.Open(context.Background(), modelFile("1"), "SHA256")
	require.NoError(t, err)
	rc.Close()

	sum := sha256.Sum256(content)
	assert.Equal(t, "SHA256", info.HashType)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.HexDigest)
}

func TestOpenMissingFile(t *testing.T) {
	e := newEngine(t, []byte("x"))

	_, _, err := e.Open(context.Background(), modelFile("7"), "")
	require.Error(t, err)
	assert.IsType(t, errtypes.NotFound(""), err)
}

func TestOpenChunk(t *testing.T) {
	content := []byte("0123456789")
	e := newEngine(t, content)
	ctx := context.Background()

	tests := []struct {
		name       string
		chunkSize  int64
		chunkIndex int64
		want       string
	}{
		{"first chunk", 4, 0, "0123"},
		{"middle chunk", 4, 1, "4567"},
		{"truncated last chunk", 4, 2, "89"},
		{"whole file in one chunk", 100, 0, "0123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, length, err := e.OpenChunk(ctx, modelFile("latest"), tt.chunkSize, tt.chunkIndex)
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.EqualValues(t, len(tt.want), length)
		})
	}
}

func TestOpenChunkErrors(t *testing.T) {
	e := newEngine(t, []byte("0123456789"))
	ctx := context.Background()

	_, _, err := e.OpenChunk(ctx, modelFile("latest"), 4, 3)
	require.Error(t, err)
	assert.IsType(t, errtypes.NotFound(""), err)

	_, _, err = e.OpenChunk(ctx, modelFile("latest"), 0, 0)
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)

	_, _, err = e.OpenChunk(ctx, modelFile("latest"), 4, -1)
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)
}
