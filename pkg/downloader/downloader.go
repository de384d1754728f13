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

// Package downloader serves repository files, whole or one byte-range
// chunk at a time. Whole-file responses carry a digest computed over
// the file; chunk responses are opaque byte streams.
package downloader

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/digest"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/repopath"
)

// Engine resolves and reads repository files.
type Engine struct {
	resolver *repopath.Resolver
	hashType string
}

// New returns a download engine computing digests with the given
// default algorithm.
func New(resolver *repopath.Resolver, hashType string) *Engine {
	return &Engine{resolver: resolver, hashType: hashType}
}

// Info describes a whole-file download.
type Info struct {
	RelPath   string
	Size      int64
	MimeType  string
	HashType  string
	HexDigest string
}

// mimeTypes maps content formats to response MIME types.
var mimeTypes = map[string]string{
	"cif":  "chemical/x-mmcif",
	"pdbx": "chemical/x-mmcif",
	"pdf":  "application/pdf",
	"xml":  "application/xml",
	"json": "application/json",
	"txt":  "text/plain",
}

func mimeType(format string) string {
	if m, ok := mimeTypes[format]; ok {
		return m
	}
	return "text/plain"
}

// Open resolves the logical file and returns a reader over the whole
// file together with its digest. hashType overrides the engine
// default when non-empty.
func (e *Engine) Open(ctx context.Context, lf repopath.LogicalFile, hashType string) (io.ReadCloser, *Info, error) {
	rel, err := e.resolver.Resolve(lf)
	if err != nil {
		return nil, nil, err
	}
	abs := e.resolver.Abs(rel)

	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errtypes.NotFound(rel)
		}
		return nil, nil, errors.Wrap(err, "downloader: error examining file")
	}

	algo := hashType
	if algo == "" {
		algo = e.hashType
	}
	sum, err := digest.Sum(abs, algo)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "downloader: error opening file")
	}

	return f, &Info{
		RelPath:   rel,
		Size:      fi.Size(),
		MimeType:  mimeType(lf.ContentFormat),
		HashType:  algo,
		HexDigest: sum,
	}, nil
}

// OpenChunk returns a reader over one chunk of the file: chunkSize
// bytes starting at chunkIndex*chunkSize. The final chunk may be
// shorter.
func (e *Engine) OpenChunk(ctx context.Context, lf repopath.LogicalFile, chunkSize, chunkIndex int64) (io.ReadCloser, int64, error) {
	if chunkSize <= 0 || chunkIndex < 0 {
		return nil, 0, errtypes.BadRequest("invalid chunk coordinates")
	}
	rel, err := e.resolver.Resolve(lf)
	if err != nil {
		return nil, 0, err
	}
	abs := e.resolver.Abs(rel)

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errtypes.NotFound(rel)
		}
		return nil, 0, errors.Wrap(err, "downloader: error opening file")
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrap(err, "downloader: error examining file")
	}

	offset := chunkIndex * chunkSize
	if offset >= fi.Size() {
		f.Close()
		return nil, 0, errtypes.NotFound("chunk beyond end of file")
	}
	length := chunkSize
	if offset+length > fi.Size() {
		length = fi.Size() - offset
	}

	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, offset, length),
		f:             f,
	}, length, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	f *os.File
}

func (s *sectionReadCloser) Close() error { return s.f.Close() }
