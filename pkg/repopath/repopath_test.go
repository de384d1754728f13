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

package repopath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/depot/pkg/errtypes"
)

func model(version string) LogicalFile {
	return LogicalFile{
		RepositoryType: "deposit",
		DepID:          "D_800001",
		ContentType:    "model",
		Milestone:      "none",
		PartNumber:     1,
		ContentFormat:  "pdbx",
		Version:        version,
	}
}

func touch(t *testing.T, root string, rel string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte("x"), 0644))
}

func TestBaseFileName(t *testing.T) {
	r := NewResolver(t.TempDir())

	tests := []struct {
		name string
		lf   LogicalFile
		want string
		ok   bool
	}{
		{
			name: "model pdbx",
			lf:   model("1"),
			want: "D_800001_model_P1.cif",
			ok:   true,
		},
		{
			name: "milestone tag",
			lf: LogicalFile{
				RepositoryType: "archive", DepID: "D_800001", ContentType: "structure-factors",
				Milestone: "release", PartNumber: 2, ContentFormat: "mtz", Version: "1",
			},
			want: "D_800001_sf-release_P2.mtz",
			ok:   true,
		},
		{
			name: "nmr-star extension",
			lf: LogicalFile{
				RepositoryType: "deposit", DepID: "D_800001", ContentType: "nmr-chemical-shifts",
				Milestone: "none", PartNumber: 1, ContentFormat: "nmr-star", Version: "1",
			},
			want: "D_800001_cs_P1.str",
			ok:   true,
		},
		{
			name: "format not permitted for content type",
			lf: LogicalFile{
				RepositoryType: "deposit", DepID: "D_800001", ContentType: "em-volume",
				Milestone: "none", PartNumber: 1, ContentFormat: "pdf", Version: "1",
			},
		},
		{
			name: "unknown repository type",
			lf: LogicalFile{
				RepositoryType: "nope", DepID: "D_800001", ContentType: "model",
				Milestone: "none", PartNumber: 1, ContentFormat: "pdbx", Version: "1",
			},
		},
		{
			name: "part below one",
			lf: LogicalFile{
				RepositoryType: "deposit", DepID: "D_800001", ContentType: "model",
				Milestone: "none", PartNumber: 0, ContentFormat: "pdbx", Version: "1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.BaseFileName(tt.lf)
			if !tt.ok {
				require.Error(t, err)
				assert.IsType(t, errtypes.BadRequest(""), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveIntegerVersions(t *testing.T) {
	r := NewResolver(t.TempDir())

	rel, err := r.Resolve(model("3"))
	require.NoError(t, err)
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V3", rel)

	_, err = r.Resolve(model("0"))
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)

	_, err = r.Resolve(model("-1"))
	require.Error(t, err)
}

func TestResolveSymbolicVersions(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	// next on an empty directory starts at 1
	rel, err := r.Resolve(model("next"))
	require.NoError(t, err)
	assert.Equal(t, "deposit/D_800001/D_800001_model_P1.cif.V1", rel)

	for _, v := range []string{"V1", "V2", "V5"} {
		touch(t, root, "deposit/D_800001/D_800001_model_P1.cif."+v)
	}
	// a decompression intermediate must not count as a version
	touch(t, root, "deposit/D_800001/D_800001_model_P1.cif.Vx")

	tests := []struct {
		version string
		want    string
	}{
		{"next", "deposit/D_800001/D_800001_model_P1.cif.V6"},
		{"latest", "deposit/D_800001/D_800001_model_P1.cif.V5"},
		{"last", "deposit/D_800001/D_800001_model_P1.cif.V5"},
		{"prev", "deposit/D_800001/D_800001_model_P1.cif.V2"},
		{"previous", "deposit/D_800001/D_800001_model_P1.cif.V2"},
		{"first", "deposit/D_800001/D_800001_model_P1.cif.V1"},
		{"second", "deposit/D_800001/D_800001_model_P1.cif.V2"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			rel, err := r.Resolve(model(tt.version))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestResolveSymbolicMissing(t *testing.T) {
	r := NewResolver(t.TempDir())

	for _, v := range []string{"latest", "prev", "first", "second"} {
		_, err := r.Resolve(model(v))
		require.Error(t, err, v)
		assert.IsType(t, errtypes.NotFound(""), err, v)
	}

	_, err := r.Resolve(model("gibberish"))
	require.Error(t, err)
	assert.IsType(t, errtypes.BadRequest(""), err)
}

func TestNextAndLatestVersion(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	next, err := r.NextVersion(model(""))
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	latest, err := r.LatestVersion(model(""))
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	touch(t, root, "deposit/D_800001/D_800001_model_P1.cif.V4")

	next, err = r.NextVersion(model(""))
	require.NoError(t, err)
	assert.Equal(t, 5, next)

	latest, err = r.LatestVersion(model(""))
	require.NoError(t, err)
	assert.Equal(t, 4, latest)
}

func TestIsSymbolicVersion(t *testing.T) {
	for _, v := range []string{"next", "latest", "last", "prev", "previous", "first", "second", "NEXT"} {
		assert.True(t, IsSymbolicVersion(v), v)
	}
	for _, v := range []string{"", "1", "0", "V1", "gibberish"} {
		assert.False(t, IsSymbolicVersion(v), v)
	}
}
