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

// Package digest computes file checksums incrementally in fixed-size
// blocks.
package digest

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
)

// blockSize is the read granularity for incremental hashing.
const blockSize = 64 * 1024

// Supported hash algorithm names.
const (
	MD5    = "MD5"
	SHA1   = "SHA1"
	SHA256 = "SHA256"
)

func newHash(algo string) (hash.Hash, error) {
	switch strings.ToUpper(algo) {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, errtypes.BadRequest("unsupported hash algorithm " + algo)
	}
}

// Sum returns the hex digest of the file at path using the given
// algorithm.
func Sum(path, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "digest: error opening file")
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, blockSize)
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, "digest: error reading file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check reports whether the file at path has the expected hex digest.
func Check(path, expectedHex, algo string) (bool, error) {
	got, err := Sum(path, algo)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got, expectedHex), nil
}
