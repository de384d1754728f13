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

package uploader

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/kv/sqlite"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/lock/soft"
	"github.com/rcsb/depot/pkg/repopath"
	"github.com/rcsb/depot/pkg/session"
)

const (
	testRel      = "deposit/D_800001/D_800001_model_P1.cif.V1"
	testFileName = "D_800001_model_P1.cif.V1"
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

func newEngine(t *testing.T, locker lock.Locker, lockTimeout time.Duration) (*Engine, *repopath.Resolver, *session.Manager) {
	t.Helper()
	root := t.TempDir()
	resolver := repopath.NewResolver(root)

	store, err := sqlite.New(map[string]interface{}{
		"kv_file_path": filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions, err := session.NewManager(store, t.TempDir())
	require.NoError(t, err)

	return New(resolver, sessions, locker, 0755, 4, lockTimeout), resolver, sessions
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestGetUploadParameters(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	p, err := e.GetUploadParameters(ctx, modelFile("next"), false, false)
	require.NoError(t, err)
	assert.Equal(t, testRel, p.FilePath)
	assert.EqualValues(t, 0, p.ChunkIndex)
	assert.NotEmpty(t, p.UploadID)

	// symbolic versions other than next also land on a fresh version
	p2, err := e.GetUploadParameters(ctx, modelFile("latest"), false, false)
	require.NoError(t, err)
	assert.Equal(t, testRel, p2.FilePath)

	// an occupied integer version is refused without allowOverwrite
	require.NoError(t, os.WriteFile(resolver.Abs(testRel), []byte("old"), 0644))
	_, err = e.GetUploadParameters(ctx, modelFile("1"), false, false)
	require.Error(t, err)
	assert.IsType(t, errtypes.PermissionDenied(""), err)

	p3, err := e.GetUploadParameters(ctx, modelFile("1"), true, false)
	require.NoError(t, err)
	assert.Equal(t, testRel, p3.FilePath)

	// next skips past the occupied version
	p4, err := e.GetUploadParameters(ctx, modelFile("next"), false, false)
	require.NoError(t, err)
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V2", p4.FilePath)
}

func TestUploadSingleChunk(t *testing.T) {
	ctx := context.Background()
	e, resolver, sessions := newEngine(t, lock.NewNop(), time.Second)

	data := []byte("hello world")
	res, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(data),
		ChunkSize:      int64(len(data)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		HashType:       "MD5",
		HashDigest:     md5hex(data),
		FilePath:       testRel,
		FileSize:       -1,
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, testRel, res.FilePath)

	got, err := os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// temp file and placeholder are gone
	_, err = os.Stat(filepath.Join(filepath.Dir(resolver.Abs(testRel)), session.TempFileName("u1")))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sessions.PlaceholderPath("deposit", "D_800001", "u1"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadMultiChunk(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cc")}
	for i, data := range chunks {
		res, err := e.UploadChunk(ctx, &Chunk{
			Data:           bytes.NewReader(data),
			ChunkSize:      4,
			ChunkIndex:     int64(i),
			ExpectedChunks: 3,
			UploadID:       "u1",
			FilePath:       testRel,
			FileSize:       10,
		})
		require.NoError(t, err)
		if i < 2 {
			assert.False(t, res.Complete)
			assert.EqualValues(t, i+1, res.ChunkIndex)
		} else {
			assert.True(t, res.Complete)
		}
	}

	got, err := os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaabbbbcc"), got)
}

func TestUploadValidation(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, lock.NewNop(), time.Second)

	tests := []struct {
		name  string
		chunk *Chunk
	}{
		{"missing upload id", &Chunk{Data: bytes.NewReader([]byte("x")), ChunkIndex: 0, ExpectedChunks: 1, FilePath: testRel, FileSize: -1}},
		{"chunk index past end", &Chunk{Data: bytes.NewReader([]byte("x")), UploadID: "u1", ChunkIndex: 2, ExpectedChunks: 2, FilePath: testRel, FileSize: -1}},
		{"negative chunk index", &Chunk{Data: bytes.NewReader([]byte("x")), UploadID: "u1", ChunkIndex: -1, ExpectedChunks: 1, FilePath: testRel, FileSize: -1}},
		{"zero expected chunks", &Chunk{Data: bytes.NewReader([]byte("x")), UploadID: "u1", ChunkIndex: 0, ExpectedChunks: 0, FilePath: testRel, FileSize: -1}},
		{"malformed path", &Chunk{Data: bytes.NewReader([]byte("x")), UploadID: "u1", ChunkIndex: 0, ExpectedChunks: 1, FilePath: "../../etc/passwd", FileSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.UploadChunk(ctx, tt.chunk)
			require.Error(t, err)
			assert.IsType(t, errtypes.BadRequest(""), err)
		})
	}
}

func TestEmptyChunkLeavesSessionAlive(t *testing.T) {
	ctx := context.Background()
	e, _, sessions := newEngine(t, lock.NewNop(), time.Second)

	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(nil),
		ChunkSize:      4,
		ChunkIndex:     0,
		ExpectedChunks: 2,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       -1,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)

	// the session survives for the client to retry the chunk
	_, err = os.Stat(sessions.PlaceholderPath("deposit", "D_800001", "u1"))
	require.NoError(t, err)
}

func TestChecksumMismatchClosesSession(t *testing.T) {
	ctx := context.Background()
	e, resolver, sessions := newEngine(t, lock.NewNop(), time.Second)

	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader([]byte("hello world")),
		ChunkSize:      11,
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		HashType:       "MD5",
		HashDigest:     strings.Repeat("0", 32),
		FilePath:       testRel,
		FileSize:       -1,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.ChecksumMismatch(""), err)

	// nothing was promoted and the session is gone
	_, err = os.Stat(resolver.Abs(testRel))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(filepath.Dir(resolver.Abs(testRel)), session.TempFileName("u1")))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sessions.PlaceholderPath("deposit", "D_800001", "u1"))
	assert.True(t, os.IsNotExist(err))
}

func TestSizeMismatch(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, lock.NewNop(), time.Second)

	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader([]byte("hello")),
		ChunkSize:      5,
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       999,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.ChecksumMismatch(""), err)
}

func TestNeitherDigestNorSize(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, lock.NewNop(), time.Second)

	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader([]byte("hello")),
		ChunkSize:      5,
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       -1,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)
}

func TestOverwriteRecheckAtFinalize(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	// the target appears between session open and the final chunk
	require.NoError(t, os.MkdirAll(filepath.Dir(resolver.Abs(testRel)), 0755))
	require.NoError(t, os.WriteFile(resolver.Abs(testRel), []byte("winner"), 0644))

	data := []byte("loser")
	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(data),
		ChunkSize:      int64(len(data)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       int64(len(data)),
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.PermissionDenied(""), err)

	got, err := os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, []byte("winner"), got)

	// with allowOverwrite the late upload wins
	res, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(data),
		ChunkSize:      int64(len(data)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u2",
		FilePath:       testRel,
		FileSize:       int64(len(data)),
		AllowOverwrite: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	got, err = os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestExtractChunk(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	plain := []byte("compressed on the wire")
	res, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(gzipBytes(t, plain)),
		ChunkSize:      int64(len(plain)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		HashType:       "MD5",
		HashDigest:     md5hex(plain),
		FilePath:       testRel,
		FileSize:       -1,
		ExtractChunk:   true,
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)

	got, err := os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestExtractChunkCorrupt(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, lock.NewNop(), time.Second)

	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader([]byte("not gzip at all")),
		ChunkSize:      15,
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       -1,
		ExtractChunk:   true,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)
}

func TestDecompressTarget(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	plain := []byte("stored decompressed")
	payload := gzipBytes(t, plain)
	res, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(payload),
		ChunkSize:      int64(len(payload)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		HashType:       "MD5",
		HashDigest:     md5hex(payload),
		FilePath:       testRel,
		FileSize:       -1,
		Decompress:     true,
		FileExtension:  "gz",
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)

	got, err := os.ReadFile(resolver.Abs(testRel))
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	// no staged compressed copy is left behind
	_, err = os.Stat(resolver.Abs(testRel) + ".gz")
	assert.True(t, os.IsNotExist(err))
}

func TestDecompressDottedExtensionRefused(t *testing.T) {
	ctx := context.Background()
	e, resolver, _ := newEngine(t, lock.NewNop(), time.Second)

	data := []byte("whatever")
	_, err := e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(data),
		ChunkSize:      int64(len(data)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       int64(len(data)),
		Decompress:     true,
		FileExtension:  "tar.gz",
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)

	_, err = os.Stat(resolver.Abs(testRel))
	assert.True(t, os.IsNotExist(err))
}

func TestResumableUploadResumes(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, lock.NewNop(), time.Second)

	p, err := e.GetUploadParameters(ctx, modelFile("next"), false, true)
	require.NoError(t, err)

	_, err = e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader([]byte("aaaa")),
		ChunkSize:      4,
		ChunkIndex:     0,
		ExpectedChunks: 3,
		UploadID:       p.UploadID,
		FilePath:       p.FilePath,
		FileSize:       10,
		Resumable:      true,
	})
	require.NoError(t, err)

	// a returning client recovers the session and skips chunk 0
	p2, err := e.GetUploadParameters(ctx, modelFile("next"), false, true)
	require.NoError(t, err)
	assert.Equal(t, p.UploadID, p2.UploadID)
	assert.Equal(t, p.FilePath, p2.FilePath)
	assert.EqualValues(t, 1, p2.ChunkIndex)
}

func TestResumableLockTimeoutPreservesSession(t *testing.T) {
	ctx := context.Background()
	locker, err := soft.New(map[string]interface{}{
		"shared_lock_path": t.TempDir(),
		"lock_second_wait": int64(1),
	})
	require.NoError(t, err)
	e, resolver, sessions := newEngine(t, locker, 1*time.Second)

	held, err := locker.Acquire(ctx, lock.Key("deposit", testFileName), lock.Exclusive, 0)
	require.NoError(t, err)
	defer held.Release()

	data := []byte("hello")
	_, err = e.UploadChunk(ctx, &Chunk{
		Data:           bytes.NewReader(data),
		ChunkSize:      int64(len(data)),
		ChunkIndex:     0,
		ExpectedChunks: 1,
		UploadID:       "u1",
		FilePath:       testRel,
		FileSize:       int64(len(data)),
		Resumable:      true,
	})
	require.Error(t, err)
	assert.IsType(t, errtypes.LockTimeout(""), err)

	// the uploaded bytes and the session binding survive for a retry
	_, err = os.Stat(filepath.Join(filepath.Dir(resolver.Abs(testRel)), session.TempFileName("u1")))
	require.NoError(t, err)
	_, err = os.Stat(sessions.PlaceholderPath("deposit", "D_800001", "u1"))
	require.NoError(t, err)
}
