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
	"net/http"
	"net/url"
	"strconv"

	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/repopath"
	"github.com/rcsb/depot/pkg/uploader"
)

// parseLogicalFile decodes the logical file tuple from query values.
func parseLogicalFile(q url.Values) (repopath.LogicalFile, error) {
	lf := repopath.LogicalFile{
		RepositoryType: q.Get("repositoryType"),
		DepID:          q.Get("depId"),
		ContentType:    q.Get("contentType"),
		Milestone:      q.Get("milestone"),
		ContentFormat:  q.Get("contentFormat"),
		Version:        q.Get("version"),
	}
	part := q.Get("partNumber")
	if part == "" {
		part = "1"
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return lf, errtypes.BadRequest("malformed partNumber " + part)
	}
	lf.PartNumber = n
	if lf.Milestone == "" {
		lf.Milestone = "none"
	}
	if lf.Version == "" {
		lf.Version = "next"
	}
	return lf, nil
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func (s *svc) handleUploadParameters(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	lf, err := parseLogicalFile(r.URL.Query())
	if err != nil {
		WriteError(w, log, err)
		return
	}
	allowOverwrite := parseBool(r.URL.Query().Get("allowOverwrite"))
	resumable := parseBool(r.URL.Query().Get("resumable"))

	params, err := s.up.GetUploadParameters(r.Context(), lf, allowOverwrite, resumable)
	if err != nil {
		WriteError(w, log, err)
		return
	}
	WriteJSON(w, http.StatusOK, params)
}

func (s *svc) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	// The form threshold only bounds in-memory buffering; larger
	// chunks spill to disk.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteError(w, log, errtypes.BadRequest("malformed multipart body: "+err.Error()))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("error removing multipart spill files")
		}
	}()

	data, hdr, err := r.FormFile("chunk")
	if err != nil {
		WriteError(w, log, errtypes.BadRequest("missing chunk part"))
		return
	}
	defer data.Close()

	formInt := func(name string, def int64) (int64, error) {
		v := r.FormValue(name)
		if v == "" {
			return def, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errtypes.BadRequest("malformed " + name + " " + v)
		}
		return n, nil
	}

	chunk := &uploader.Chunk{
		Data:           data,
		UploadID:       r.FormValue("uploadId"),
		HashType:       r.FormValue("hashType"),
		HashDigest:     r.FormValue("hashDigest"),
		FilePath:       r.FormValue("filePath"),
		FileExtension:  r.FormValue("fileExtension"),
		Decompress:     parseBool(r.FormValue("decompress")),
		AllowOverwrite: parseBool(r.FormValue("allowOverwrite")),
		Resumable:      parseBool(r.FormValue("resumable")),
		ExtractChunk:   parseBool(r.FormValue("extractChunk")),
	}
	if chunk.ChunkSize, err = formInt("chunkSize", s.conf.ChunkSize); err != nil {
		WriteError(w, log, err)
		return
	}
	if chunk.ChunkIndex, err = formInt("chunkIndex", 0); err != nil {
		WriteError(w, log, err)
		return
	}
	if chunk.ExpectedChunks, err = formInt("expectedChunks", 0); err != nil {
		WriteError(w, log, err)
		return
	}
	if chunk.FileSize, err = formInt("fileSize", -1); err != nil {
		WriteError(w, log, err)
		return
	}

	res, err := s.up.UploadChunk(r.Context(), chunk)
	if err != nil {
		uploadsFailed.Inc()
		WriteError(w, log, err)
		return
	}
	uploadChunks.Inc()
	uploadBytes.Add(float64(hdr.Size))
	if res.Complete {
		uploadsCompleted.Inc()
		log.Info().Str("file", res.FilePath).Msg("upload complete")
	}
	WriteJSON(w, http.StatusOK, res)
}
