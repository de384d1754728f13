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

package fileio

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/repopath"
)

// handleDownload streams a whole file or one chunk of it. Digest
// headers are attached to whole-file responses only.
func (s *svc) handleDownload(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	lf, err := parseLogicalFile(r.URL.Query())
	if err != nil {
		WriteError(w, log, err)
		return
	}
	if lf.Version == "" || lf.Version == "next" {
		lf.Version = "latest"
	}

	q := r.URL.Query()
	chunkSizeStr, chunkIndexStr := q.Get("chunkSize"), q.Get("chunkIndex")
	if chunkSizeStr != "" && chunkIndexStr != "" {
		chunkSize, err1 := strconv.ParseInt(chunkSizeStr, 10, 64)
		chunkIndex, err2 := strconv.ParseInt(chunkIndexStr, 10, 64)
		if err1 != nil || err2 != nil {
			WriteError(w, log, errtypes.BadRequest("malformed chunk coordinates"))
			return
		}
		s.downloadChunk(w, r, lf, chunkSize, chunkIndex)
		return
	}

	rc, info, err := s.down.Open(r.Context(), lf, q.Get("hashType"))
	if err != nil {
		WriteError(w, log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("rcsb_hash_type", info.HashType)
	w.Header().Set("rcsb_hexdigest", info.HexDigest)
	n, err := io.Copy(w, rc)
	if err != nil {
		log.Warn().Err(err).Str("file", info.RelPath).Msg("download aborted")
	}
	downloads.Inc()
	downloadBytes.Add(float64(n))
}

// downloadChunk serves one byte range as an opaque stream.
func (s *svc) downloadChunk(w http.ResponseWriter, r *http.Request, lf repopath.LogicalFile, chunkSize, chunkIndex int64) {
	log := appctx.GetLogger(r.Context())

	rc, length, err := s.down.OpenChunk(r.Context(), lf, chunkSize, chunkIndex)
	if err != nil {
		WriteError(w, log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	n, err := io.Copy(w, rc)
	if err != nil {
		log.Warn().Err(err).Msg("chunk download aborted")
	}
	downloads.Inc()
	downloadBytes.Add(float64(n))
}
