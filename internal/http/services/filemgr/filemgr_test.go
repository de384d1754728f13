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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*svc, string) {
	t.Helper()
	repo := t.TempDir()
	log := zerolog.Nop()
	s, err := New(map[string]interface{}{
		"repository_dir_path": repo,
	}, &log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.(*svc), repo
}

func modelRef(version string) fileRef {
	return fileRef{
		RepositoryType: "deposit",
		DepID:          "D_800001",
		ContentType:    "model",
		PartNumber:     1,
		ContentFormat:  "pdbx",
		Version:        version,
	}
}

func seed(t *testing.T, repo, name string, content []byte) {
	t.Helper()
	dir := filepath.Join(repo, "deposit", "D_800001")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0644))
}

func postJSON(t *testing.T, s *svc, route string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, route, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(s *svc, route string, q url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, route+"?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func modelQuery(version string) url.Values {
	q := url.Values{}
	q.Set("repositoryType", "deposit")
	q.Set("depId", "D_800001")
	q.Set("contentType", "model")
	q.Set("contentFormat", "pdbx")
	if version != "" {
		q.Set("version", version)
	}
	return q
}

func TestServiceSurface(t *testing.T) {
	s, _ := newService(t)
	assert.Equal(t, "filemgr", s.Prefix())
	assert.Empty(t, s.Unprotected())
}

func TestCopy(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("v1 content"))

	rec := postJSON(t, s, "/copy", transferBody{
		Source: modelRef("latest"),
		Target: modelRef("next"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V2", res["filePath"])

	// both versions exist with the same content
	for _, v := range []string{"V1", "V2"} {
		got, err := os.ReadFile(filepath.Join(repo, "deposit", "D_800001", "D_800001_model_P1.cif."+v))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1 content"), got)
	}
}

func TestCopyRefusesOccupiedTarget(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("one"))
	seed(t, repo, "D_800001_model_P1.cif.V2", []byte("two"))

	rec := postJSON(t, s, "/copy", transferBody{
		Source: modelRef("1"),
		Target: modelRef("2"),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postJSON(t, s, "/copy", transferBody{
		Source:         modelRef("1"),
		Target:         modelRef("2"),
		AllowOverwrite: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := os.ReadFile(filepath.Join(repo, "deposit", "D_800001", "D_800001_model_P1.cif.V2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

func TestMove(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("content"))

	rec := postJSON(t, s, "/move", transferBody{
		Source: modelRef("1"),
		Target: fileRef{
			RepositoryType: "deposit", DepID: "D_800001", ContentType: "model",
			Milestone: "annotate", PartNumber: 1, ContentFormat: "pdbx", Version: "next",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := os.Stat(filepath.Join(repo, "deposit", "D_800001", "D_800001_model_P1.cif.V1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(repo, "deposit", "D_800001", "D_800001_model-annotate_P1.cif.V1"))
	require.NoError(t, err)
}

func TestMoveMissingSource(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("content"))

	rec := postJSON(t, s, "/move", transferBody{
		Source: modelRef("5"),
		Target: modelRef("next"),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("content"))

	rec := postJSON(t, s, "/delete", modelRef("latest"))
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(filepath.Join(repo, "deposit", "D_800001", "D_800001_model_P1.cif.V1"))
	assert.True(t, os.IsNotExist(err))

	// a second delete finds nothing
	rec = postJSON(t, s, "/delete", modelRef("1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExists(t *testing.T) {
	s, repo := newService(t)

	rec := get(s, "/exists", modelQuery("latest"))
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, false, res["exists"])

	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("content"))
	rec = get(s, "/exists", modelQuery("latest"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, true, res["exists"])
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V1", res["filePath"])
}

func TestPathExists(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("content"))

	q := url.Values{}
	q.Set("path", "deposit/D_800001/D_800001_model_P1.cif.V1")
	rec := get(s, "/path-exists", q)
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, true, res["exists"])

	// escape attempts are refused rather than resolved
	for _, p := range []string{"../outside", "/etc/passwd", ""} {
		q.Set("path", p)
		rec = get(s, "/path-exists", q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
	}
}

func TestList(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("one"))
	seed(t, repo, "D_800001_model_P1.cif.V2", []byte("two"))
	seed(t, repo, "._hidden-temp", []byte("x"))

	q := url.Values{}
	q.Set("repositoryType", "deposit")
	q.Set("depId", "D_800001")
	rec := get(s, "/list", q)
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string][]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.ElementsMatch(t, []string{
		"D_800001_model_P1.cif.V1",
		"D_800001_model_P1.cif.V2",
	}, res["files"])

	q.Set("depId", "D_999999")
	rec = get(s, "/list", q)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionQueries(t *testing.T) {
	s, repo := newService(t)

	rec := get(s, "/next-version", modelQuery(""))
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res["version"])

	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("one"))
	seed(t, repo, "D_800001_model_P1.cif.V3", []byte("three"))

	rec = get(s, "/latest-version", modelQuery(""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 3, res["version"])

	rec = get(s, "/next-version", modelQuery(""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 4, res["version"])
}

func TestCompressDecompressDir(t *testing.T) {
	s, repo := newService(t)
	seed(t, repo, "D_800001_model_P1.cif.V1", []byte("archived content"))

	body := dirBody{RepositoryType: "deposit", DepID: "D_800001"}
	rec := postJSON(t, s, "/compress-dir", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err := os.Stat(filepath.Join(repo, "deposit", "D_800001.zip"))
	require.NoError(t, err)

	// wipe the directory and restore it from the archive
	require.NoError(t, os.RemoveAll(filepath.Join(repo, "deposit", "D_800001")))
	rec = postJSON(t, s, "/decompress-dir", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := os.ReadFile(filepath.Join(repo, "deposit", "D_800001", "D_800001_model_P1.cif.V1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("archived content"), got)
}

func TestCompressDirMissing(t *testing.T) {
	s, _ := newService(t)

	rec := postJSON(t, s, "/compress-dir", dirBody{RepositoryType: "deposit", DepID: "D_999999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
