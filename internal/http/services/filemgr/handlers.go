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

package filemgr

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rcsb/depot/internal/http/services/fileio"
	"github.com/rcsb/depot/pkg/appctx"
	"github.com/rcsb/depot/pkg/compress"
	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/lock"
	"github.com/rcsb/depot/pkg/repopath"
)

// fileRef is the JSON form of the logical file tuple.
type fileRef struct {
	RepositoryType string `json:"repositoryType"`
	DepID          string `json:"depId"`
	ContentType    string `json:"contentType"`
	Milestone      string `json:"milestone"`
	PartNumber     int    `json:"partNumber"`
	ContentFormat  string `json:"contentFormat"`
	Version        string `json:"version"`
}

func (f fileRef) logical(defaultVersion string) repopath.LogicalFile {
	lf := repopath.LogicalFile{
		RepositoryType: f.RepositoryType,
		DepID:          f.DepID,
		ContentType:    f.ContentType,
		Milestone:      f.Milestone,
		PartNumber:     f.PartNumber,
		ContentFormat:  f.ContentFormat,
		Version:        f.Version,
	}
	if lf.Milestone == "" {
		lf.Milestone = "none"
	}
	if lf.PartNumber == 0 {
		lf.PartNumber = 1
	}
	if lf.Version == "" {
		lf.Version = defaultVersion
	}
	return lf
}

func queryRef(q url.Values) fileRef {
	part, _ := strconv.Atoi(q.Get("partNumber"))
	return fileRef{
		RepositoryType: q.Get("repositoryType"),
		DepID:          q.Get("depId"),
		ContentType:    q.Get("contentType"),
		Milestone:      q.Get("milestone"),
		PartNumber:     part,
		ContentFormat:  q.Get("contentFormat"),
		Version:        q.Get("version"),
	}
}

type transferBody struct {
	Source         fileRef `json:"source"`
	Target         fileRef `json:"target"`
	AllowOverwrite bool    `json:"allowOverwrite"`
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errtypes.BadRequest("malformed request body: " + err.Error())
	}
	return nil
}

// transfer resolves source and target and runs op on their absolute
// paths under the target's exclusive lock.
func (s *svc) transfer(w http.ResponseWriter, r *http.Request, op func(src, dst string) error) {
	log := appctx.GetLogger(r.Context())

	var body transferBody
	if err := decodeBody(r, &body); err != nil {
		fileio.WriteError(w, log, err)
		return
	}

	srcRel, err := s.resolver.Resolve(body.Source.logical("latest"))
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	dstRel, err := s.resolver.Resolve(body.Target.logical("next"))
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	dstAbs := s.resolver.Abs(dstRel)

	if !body.AllowOverwrite {
		if _, err := os.Stat(dstAbs); err == nil {
			fileio.WriteError(w, log, errtypes.PermissionDenied("target exists: "+dstRel))
			return
		}
	}
	if err := os.MkdirAll(filepath.Dir(dstAbs), s.perm); err != nil {
		fileio.WriteError(w, log, errors.Wrap(err, "filemgr: error creating target directory"))
		return
	}

	key := lock.Key(body.Target.RepositoryType, path.Base(dstRel))
	held, err := s.locker.Acquire(r.Context(), key, lock.Exclusive, s.lockTimeout)
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	defer func() {
		if rerr := held.Release(); rerr != nil {
			log.Error().Err(rerr).Str("key", key).Msg("error releasing lock")
		}
	}()

	if err := op(s.resolver.Abs(srcRel), dstAbs); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"filePath": dstRel})
}

func (s *svc) handleCopy(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, func(src, dst string) error {
		in, err := os.Open(src)
		if err != nil {
			if os.IsNotExist(err) {
				return errtypes.NotFound(src)
			}
			return errors.Wrap(err, "filemgr: error opening source")
		}
		defer in.Close()
		out, err := os.Create(dst)
		if err != nil {
			return errors.Wrap(err, "filemgr: error creating target")
		}
		if _, err = io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(dst)
			return errors.Wrap(err, "filemgr: error copying file")
		}
		return out.Close()
	})
}

func (s *svc) handleMove(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, func(src, dst string) error {
		if err := os.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				return errtypes.NotFound(src)
			}
			return errors.Wrap(err, "filemgr: error moving file")
		}
		return nil
	})
}

func (s *svc) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	var ref fileRef
	if err := decodeBody(r, &ref); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	rel, err := s.resolver.Resolve(ref.logical("latest"))
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}

	key := lock.Key(ref.RepositoryType, path.Base(rel))
	held, err := s.locker.Acquire(r.Context(), key, lock.Exclusive, s.lockTimeout)
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	defer func() {
		if rerr := held.Release(); rerr != nil {
			log.Error().Err(rerr).Str("key", key).Msg("error releasing lock")
		}
	}()

	if err := os.Remove(s.resolver.Abs(rel)); err != nil {
		if os.IsNotExist(err) {
			fileio.WriteError(w, log, errtypes.NotFound(rel))
			return
		}
		fileio.WriteError(w, log, errors.Wrap(err, "filemgr: error removing file"))
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"filePath": rel})
}

func (s *svc) handleExists(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	rel, err := s.resolver.Resolve(queryRef(r.URL.Query()).logical("latest"))
	if err != nil {
		if _, ok := err.(errtypes.IsNotFound); ok {
			fileio.WriteJSON(w, http.StatusOK, map[string]interface{}{"exists": false})
			return
		}
		fileio.WriteError(w, log, err)
		return
	}
	_, err = os.Stat(s.resolver.Abs(rel))
	fileio.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exists":   err == nil,
		"filePath": rel,
	})
}

func (s *svc) handlePathExists(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	rel := path.Clean(r.URL.Query().Get("path"))
	if rel == "" || rel == "." || strings.HasPrefix(rel, "..") || path.IsAbs(rel) {
		fileio.WriteError(w, log, errtypes.BadRequest("malformed path"))
		return
	}
	_, err := os.Stat(s.resolver.Abs(rel))
	fileio.WriteJSON(w, http.StatusOK, map[string]interface{}{"exists": err == nil})
}

func (s *svc) handleList(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	q := r.URL.Query()
	repoType, depID := q.Get("repositoryType"), q.Get("depId")
	if !repopath.ValidRepositoryType(repoType) || depID == "" {
		fileio.WriteError(w, log, errtypes.BadRequest("malformed repositoryType or depId"))
		return
	}

	rel := s.resolver.DirPath(repoType, depID)
	entries, err := os.ReadDir(s.resolver.Abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			fileio.WriteError(w, log, errtypes.NotFound(rel))
			return
		}
		fileio.WriteError(w, log, errors.Wrap(err, "filemgr: error listing directory"))
		return
	}

	files := make([]string, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		files = append(files, de.Name())
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (s *svc) version(w http.ResponseWriter, r *http.Request, f func(repopath.LogicalFile) (int, error)) {
	log := appctx.GetLogger(r.Context())

	v, err := f(queryRef(r.URL.Query()).logical("latest"))
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]int{"version": v})
}

func (s *svc) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	s.version(w, r, s.resolver.LatestVersion)
}

func (s *svc) handleNextVersion(w http.ResponseWriter, r *http.Request) {
	s.version(w, r, s.resolver.NextVersion)
}

type dirBody struct {
	RepositoryType string `json:"repositoryType"`
	DepID          string `json:"depId"`
}

func (s *svc) depositDir(r *http.Request) (rel string, err error) {
	var body dirBody
	if err := decodeBody(r, &body); err != nil {
		return "", err
	}
	if !repopath.ValidRepositoryType(body.RepositoryType) || body.DepID == "" {
		return "", errtypes.BadRequest("malformed repositoryType or depId")
	}
	return s.resolver.DirPath(body.RepositoryType, body.DepID), nil
}

// handleCompressDir zips a deposit directory into {dir}.zip beside it.
func (s *svc) handleCompressDir(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	rel, err := s.depositDir(r)
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	abs := s.resolver.Abs(rel)
	if _, err := os.Stat(abs); err != nil {
		fileio.WriteError(w, log, errtypes.NotFound(rel))
		return
	}
	if err := compress.CompressDir(abs, abs+".zip"); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"archive": rel + ".zip"})
}

// handleDecompressDir extracts {dir}.zip back into the deposit
// directory.
func (s *svc) handleDecompressDir(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	rel, err := s.depositDir(r)
	if err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	abs := s.resolver.Abs(rel)
	if _, err := os.Stat(abs + ".zip"); err != nil {
		fileio.WriteError(w, log, errtypes.NotFound(rel+".zip"))
		return
	}
	if err := os.MkdirAll(abs, s.perm); err != nil {
		fileio.WriteError(w, log, errors.Wrap(err, "filemgr: error creating directory"))
		return
	}
	if err := compress.DecompressDir(abs+".zip", abs); err != nil {
		fileio.WriteError(w, log, err)
		return
	}
	fileio.WriteJSON(w, http.StatusOK, map[string]string{"dirPath": rel})
}
