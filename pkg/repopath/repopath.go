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

// Package repopath computes versioned repository paths and filenames
// from logical file coordinates. Integer versions resolve without
// touching the filesystem; symbolic versions (next, latest, previous,
// first, second) resolve against a single-directory scan.
package repopath

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rcsb/depot/pkg/errtypes"
)

// LogicalFile identifies a deposition artifact independent of the
// on-disk layout.
type LogicalFile struct {
	RepositoryType string
	DepID          string
	ContentType    string
	Milestone      string
	PartNumber     int
	ContentFormat  string
	Version        string
}

// Resolver maps logical files to paths under a repository root. All
// returned paths are relative to the root so that they can be handed
// to clients without leaking the server layout.
type Resolver struct {
	root string
}

// NewResolver returns a resolver over the given repository root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Root returns the repository root directory.
func (r *Resolver) Root() string { return r.root }

// Abs joins a root-relative path with the repository root.
func (r *Resolver) Abs(rel string) string { return filepath.Join(r.root, rel) }

// DirPath returns the root-relative deposit directory.
func (r *Resolver) DirPath(repoType, depID string) string {
	return path.Join(repoType, depID)
}

// validate checks the logical tuple against the fixed catalogs.
func (lf *LogicalFile) validate() error {
	if !ValidRepositoryType(lf.RepositoryType) {
		return errtypes.BadRequest("unknown repository type " + lf.RepositoryType)
	}
	if lf.DepID == "" {
		return errtypes.BadRequest("empty deposit id")
	}
	if !ValidMilestone(lf.Milestone) {
		return errtypes.BadRequest("unknown milestone " + lf.Milestone)
	}
	if lf.PartNumber < 1 {
		return errtypes.BadRequest("part number must be >= 1")
	}
	if _, ok := contentTypeCode(lf.ContentType, lf.ContentFormat); !ok {
		return errtypes.BadRequest(fmt.Sprintf("content type %q does not permit format %q", lf.ContentType, lf.ContentFormat))
	}
	return nil
}

// BaseFileName composes the filename without the version suffix:
// {depId}_{code}{-milestone?}_P{part}.{ext}
func (r *Resolver) BaseFileName(lf LogicalFile) (string, error) {
	if err := lf.validate(); err != nil {
		return "", err
	}
	code, _ := contentTypeCode(lf.ContentType, lf.ContentFormat)
	if lf.Milestone != "" && lf.Milestone != "none" {
		code = code + "-" + lf.Milestone
	}
	return fmt.Sprintf("%s_%s_P%d.%s", lf.DepID, code, lf.PartNumber, formatExtension(lf.ContentFormat)), nil
}

// FileName composes the full versioned filename. The version must
// already be an integer; symbolic versions have to be resolved first.
func (r *Resolver) FileName(lf LogicalFile) (string, error) {
	base, err := r.BaseFileName(lf)
	if err != nil {
		return "", err
	}
	v, err := parseIntVersion(lf.Version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.V%d", base, v), nil
}

// Resolve maps the logical file to its root-relative target path,
// resolving symbolic versions against the deposit directory. A
// symbolic version with no matching file yields a NotFound error,
// except "next", which always resolves.
func (r *Resolver) Resolve(lf LogicalFile) (string, error) {
	base, err := r.BaseFileName(lf)
	if err != nil {
		return "", err
	}
	dir := r.DirPath(lf.RepositoryType, lf.DepID)

	if v, err := parseIntVersion(lf.Version); err == nil {
		return path.Join(dir, fmt.Sprintf("%s.V%d", base, v)), nil
	}

	versions, err := r.scanVersions(dir, base)
	if err != nil {
		return "", err
	}

	var v int
	switch strings.ToLower(lf.Version) {
	case "next":
		if len(versions) == 0 {
			v = 1
		} else {
			v = versions[0] + 1
		}
	case "latest", "last":
		if len(versions) == 0 {
			return "", errtypes.NotFound("no versions of " + base)
		}
		v = versions[0]
	case "prev", "previous":
		if len(versions) < 2 {
			return "", errtypes.NotFound("no previous version of " + base)
		}
		v = versions[1]
	case "first":
		if len(versions) == 0 {
			return "", errtypes.NotFound("no versions of " + base)
		}
		v = versions[len(versions)-1]
	case "second":
		if len(versions) < 2 {
			return "", errtypes.NotFound("no second version of " + base)
		}
		v = versions[len(versions)-2]
	default:
		return "", errtypes.BadRequest("invalid version " + lf.Version)
	}

	return path.Join(dir, fmt.Sprintf("%s.V%d", base, v)), nil
}

// NextVersion returns the integer version that "next" resolves to.
func (r *Resolver) NextVersion(lf LogicalFile) (int, error) {
	base, err := r.BaseFileName(lf)
	if err != nil {
		return 0, err
	}
	versions, err := r.scanVersions(r.DirPath(lf.RepositoryType, lf.DepID), base)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[0] + 1, nil
}

// LatestVersion returns the highest existing integer version, or 0
// when no version of the file exists.
func (r *Resolver) LatestVersion(lf LogicalFile) (int, error) {
	base, err := r.BaseFileName(lf)
	if err != nil {
		return 0, err
	}
	versions, err := r.scanVersions(r.DirPath(lf.RepositoryType, lf.DepID), base)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[0], nil
}

// scanVersions enumerates {base}.V* files in the deposit directory and
// returns their integer versions sorted descending.
func (r *Resolver) scanVersions(relDir, base string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(r.root, relDir, base+".V*"))
	if err != nil {
		return nil, errtypes.InternalError("repopath: bad glob pattern: " + err.Error())
	}
	versions := make([]int, 0, len(matches))
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), base+".V")
		v, err := strconv.Atoi(suffix)
		if err != nil || v < 1 {
			continue // foreign file, e.g. a decompression intermediate
		}
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

// parseIntVersion parses an explicit integer version. Version 0 is
// rejected together with negatives.
func parseIntVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errtypes.BadRequest("not an integer version: " + s)
	}
	if v < 1 {
		return 0, errtypes.BadRequest("version must be >= 1")
	}
	return v, nil
}

// IsSymbolicVersion reports whether s is one of the symbolic version
// forms.
func IsSymbolicVersion(s string) bool {
	switch strings.ToLower(s) {
	case "next", "latest", "last", "prev", "previous", "first", "second":
		return true
	}
	return false
}

// EnsureDir creates the absolute directory for a root-relative path
// with the given permissions.
func (r *Resolver) EnsureDir(relDir string, perm os.FileMode) error {
	return os.MkdirAll(filepath.Join(r.root, relDir), perm)
}
