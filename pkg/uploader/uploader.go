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

// Package uploader implements the chunked upload engine. One chunk
// arrives per HTTP call and is appended to a hidden temp file beside
// the target; on the last chunk the accumulated bytes are verified
// against the claimed digest or size and promoted to the versioned
// target path under the exclusive cross-process lock.
package uploader

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/compress"
	"github.com/rcsb/depot/pkg/digest"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/repopath"
	"github.com/rcsb/depot/pkg/session"
)

// Engine coordinates the session manager, path resolver and lock
// driver for uploads.
type Engine struct {
	resolver    *repopath.Resolver
	sessions    *session.Manager
	locker      lock.Locker
	perms       os.FileMode
	chunkSize   int64
	lockTimeout time.Duration
}

// New returns an upload engine.
func New(resolver *repopath.Resolver, sessions *session.Manager, locker lock.Locker, perms os.FileMode, chunkSize int64, lockTimeout time.Duration) *Engine {
	return &Engine{
		resolver:    resolver,
		sessions:    sessions,
		locker:      locker,
		perms:       perms,
		chunkSize:   chunkSize,
		lockTimeout: lockTimeout,
	}
}

// Parameters is the reply to a getUploadParameters call. FilePath is
// relative to the repository root, which is never exposed to clients.
type Parameters struct {
	FilePath   string `json:"filePath"`
	ChunkIndex int64  `json:"chunkIndex"`
	UploadID   string `json:"uploadId"`
}

// GetUploadParameters validates the logical file, opens or resumes a
// session and reports where the next chunk should go.
func (e *Engine) GetUploadParameters(ctx context.Context, lf repopath.LogicalFile, allowOverwrite, resumable bool) (*Parameters, error) {
	if repopath.IsSymbolicVersion(lf.Version) {
		// Uploads always land on a fresh version.
		lf.Version = "next"
	}
	rel, err := e.resolver.Resolve(lf)
	if err != nil {
		return nil, err
	}

	abs := e.resolver.Abs(rel)
	if !allowOverwrite {
		if _, err := os.Stat(abs); err == nil {
			return nil, errtypes.PermissionDenied("target exists: " + rel)
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), e.perms); err != nil {
		return nil, errors.Wrap(err, "uploader: error creating target directory")
	}

	filename := path.Base(rel)
	mapKey := session.MapKey(lf.RepositoryType, filename)

	uploadID, resumed, err := e.sessions.Open(ctx, mapKey, resumable)
	if err != nil {
		return nil, err
	}

	var chunkIndex int64
	if resumed {
		size, err := e.sessions.ChunkSize(ctx, uploadID)
		if err != nil {
			// Session row lost; start the upload over.
			size = 0
		}
		chunkIndex = session.Progress(filepath.Join(filepath.Dir(abs), session.TempFileName(uploadID)), size)
	}

	return &Parameters{FilePath: rel, ChunkIndex: chunkIndex, UploadID: uploadID}, nil
}

// Chunk carries one upload call. FileSize is -1 when the client did
// not claim a size.
type Chunk struct {
	Data           io.Reader
	ChunkSize      int64
	ChunkIndex     int64
	ExpectedChunks int64
	UploadID       string
	HashType       string
	HashDigest     string
	FilePath       string // repository-root-relative target
	FileSize       int64
	FileExtension  string
	Decompress     bool
	AllowOverwrite bool
	Resumable      bool
	ExtractChunk   bool
}

// Result reports whether the chunk finished the upload.
type Result struct {
	Complete   bool   `json:"complete"`
	FilePath   string `json:"filePath"`
	ChunkIndex int64  `json:"chunkIndex"`
}

// target splits the relative file path into its coordinates.
func target(filePath string) (repoType, depID, filename string, err error) {
	parts := strings.Split(path.Clean(filePath), "/")
	if len(parts) != 3 || parts[0] == "" || parts[0] == ".." || parts[1] == "" || parts[2] == "" {
		return "", "", "", errtypes.BadRequest("malformed file path " + filePath)
	}
	return parts[0], parts[1], parts[2], nil
}

// UploadChunk appends one chunk and finalizes the upload when it is
// the last one.
func (e *Engine) UploadChunk(ctx context.Context, c *Chunk) (*Result, error) {
	log := appctx.GetLogger(ctx)

	if c.UploadID == "" {
		return nil, errtypes.BadRequest("missing uploadId")
	}
	if c.ExpectedChunks < 1 || c.ChunkIndex < 0 || c.ChunkIndex >= c.ExpectedChunks {
		return nil, errtypes.BadRequest("chunk index out of range")
	}
	repoType, depID, filename, err := target(c.FilePath)
	if err != nil {
		return nil, err
	}

	abs := e.resolver.Abs(c.FilePath)
	dir := filepath.Dir(abs)
	tempPath := filepath.Join(dir, session.TempFileName(c.UploadID))
	mapKey := session.MapKey(repoType, filename)

	if err := os.MkdirAll(dir, e.perms); err != nil {
		return nil, errors.Wrap(err, "uploader: error creating target directory")
	}

	if c.ChunkIndex == 0 {
		if err := e.sessions.MakePlaceholder(repoType, depID, c.UploadID); err != nil {
			return nil, err
		}
		if c.Resumable {
			size := c.ChunkSize
			if size <= 0 {
				size = e.chunkSize
			}
			if err := e.sessions.RecordChunkSize(ctx, c.UploadID, size); err != nil {
				return nil, err
			}
			if err := e.sessions.BindTarget(ctx, mapKey, c.UploadID); err != nil {
				return nil, err
			}
		}
	}

	if err := e.appendChunk(tempPath, c); err != nil {
		if _, ok := err.(errtypes.IsBadRequest); ok {
			return nil, err // empty payload, no state change
		}
		// Failed append poisons the temp file; tear the session down.
		if cerr := e.sessions.Close(ctx, tempPath, c.Resumable, mapKey, c.UploadID, repoType, depID); cerr != nil {
			log.Error().Err(cerr).Str("uploadId", c.UploadID).Msg("error closing session after append failure")
		}
		return nil, err
	}

	if c.ChunkIndex+1 < c.ExpectedChunks {
		return &Result{Complete: false, FilePath: c.FilePath, ChunkIndex: c.ChunkIndex + 1}, nil
	}

	return e.finalize(ctx, c, repoType, depID, filename, abs, tempPath, mapKey)
}

func (e *Engine) appendChunk(tempPath string, c *Chunk) error {
	data := c.Data
	if c.ExtractChunk {
		raw, err := io.ReadAll(c.Data)
		if err != nil {
			return errors.Wrap(err, "uploader: error reading chunk body")
		}
		plain, err := compress.GunzipBytes(raw)
		if err != nil {
			return errtypes.BadRequest("corrupt compressed chunk: " + err.Error())
		}
		if len(plain) == 0 {
			return errtypes.BadRequest("empty chunk payload")
		}
		data = bytes.NewReader(plain)
	}

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "uploader: error opening temp file")
	}
	n, err := io.Copy(f, data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "uploader: error appending chunk")
	}
	if n == 0 && !c.ExtractChunk {
		return errtypes.BadRequest("empty chunk payload")
	}
	return nil
}

// finalize verifies the accumulated bytes, promotes the temp file to
// the versioned target under the exclusive lock and optionally
// decompresses the result. The session is closed on every path out of
// here, with one exception: a lock timeout on a resumable session
// preserves the uploaded bytes so the client can retry the final
// chunk.
func (e *Engine) finalize(ctx context.Context, c *Chunk, repoType, depID, filename, abs, tempPath, mapKey string) (*Result, error) {
	log := appctx.GetLogger(ctx)

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if err := e.sessions.Close(ctx, tempPath, c.Resumable, mapKey, c.UploadID, repoType, depID); err != nil {
			log.Error().Err(err).Str("uploadId", c.UploadID).Msg("error closing session")
		}
	}
	defer closeSession()

	if err := e.verify(tempPath, c); err != nil {
		return nil, err
	}

	held, err := e.locker.Acquire(ctx, lock.Key(repoType, filename), lock.Exclusive, e.lockTimeout)
	if err != nil {
		if _, ok := err.(errtypes.IsLockTimeout); ok && c.Resumable {
			// Keep the session; only the finalization is retried.
			closed = true
		}
		return nil, err
	}
	defer func() {
		if rerr := held.Release(); rerr != nil {
			log.Error().Err(rerr).Str("file", c.FilePath).Msg("error releasing lock")
		}
	}()

	// Another upload may have won the target since the session opened.
	if !c.AllowOverwrite {
		if _, err := os.Stat(abs); err == nil {
			return nil, errtypes.PermissionDenied("target exists: " + c.FilePath)
		}
	}

	if err := os.Rename(tempPath, abs); err != nil {
		return nil, errors.Wrap(err, "uploader: error promoting temp file")
	}

	if c.Decompress && c.FileExtension != "" {
		if err := e.decompressTarget(abs, c.FileExtension); err != nil {
			return nil, err
		}
	}

	return &Result{Complete: true, FilePath: c.FilePath, ChunkIndex: c.ExpectedChunks}, nil
}

func (e *Engine) verify(tempPath string, c *Chunk) error {
	switch {
	case c.HashType != "" && c.HashDigest != "":
		ok, err := digest.Check(tempPath, c.HashDigest, c.HashType)
		if err != nil {
			return err
		}
		if !ok {
			return errtypes.ChecksumMismatch(c.FilePath)
		}
	case c.FileSize >= 0:
		fi, err := os.Stat(tempPath)
		if err != nil {
			return errors.Wrap(err, "uploader: error examining temp file")
		}
		if fi.Size() != c.FileSize {
			return errtypes.ChecksumMismatch(c.FilePath)
		}
	default:
		return errtypes.BadRequest("neither digest nor file size provided")
	}
	return nil
}

// decompressTarget renames the target aside with its compression
// extension, decompresses it back into place and removes the
// compressed original. A dotted extension would produce an ambiguous
// double-extension name and is refused, removing the file.
func (e *Engine) decompressTarget(abs, ext string) error {
	if strings.Contains(ext, ".") {
		os.Remove(abs)
		return errtypes.BadRequest("ambiguous compression extension " + ext)
	}
	compressed := abs + "." + ext
	if err := os.Rename(abs, compressed); err != nil {
		return errors.Wrap(err, "uploader: error staging compressed file")
	}
	if err := compress.DecompressFile(compressed, abs, ext); err != nil {
		os.Remove(compressed)
		os.Remove(abs)
		return err
	}
	if err := os.Remove(compressed); err != nil {
		return errors.Wrap(err, "uploader: error removing compressed original")
	}
	return nil
}
