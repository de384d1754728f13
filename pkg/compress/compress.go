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

// Package compress provides single-file and directory
// (de)compression for the upload and file-management paths.
package compress

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/rcsb/depot/pkg/errtypes"
)

// GunzipBytes decompresses a gzip frame held in memory. It is used
// for chunk bodies sent with wire compression.
func GunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "compress: error opening gzip frame")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "compress: error decompressing frame")
	}
	return out, nil
}

// DecompressFile decompresses src into dst according to the extension
// (gz, bz2, xz, lzma, zip). For zip archives the first entry is
// extracted.
func DecompressFile(src, dst, ext string) error {
	switch strings.ToLower(ext) {
	case "gz", "gzip":
		return decompressStream(src, dst, func(r io.Reader) (io.Reader, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		})
	case "bz2", "bzip2":
		return decompressStream(src, dst, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case "xz", "lzma":
		return decompressStream(src, dst, func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		})
	case "zip":
		return unzipFirstEntry(src, dst)
	default:
		return errtypes.BadRequest("unsupported compression extension " + ext)
	}
}

func decompressStream(src, dst string, open func(io.Reader) (io.Reader, error)) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "compress: error opening source")
	}
	defer in.Close()

	r, err := open(in)
	if err != nil {
		return errors.Wrap(err, "compress: error opening compressed stream")
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "compress: error creating destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return errors.Wrap(err, "compress: error decompressing")
	}
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, "compress: corrupt compressed stream")
		}
	}
	return out.Close()
}

func unzipFirstEntry(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrap(err, "compress: error opening zip archive")
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrap(err, "compress: error opening zip entry")
		}
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			rc.Close()
			return errors.Wrap(err, "compress: error creating destination")
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "compress: error extracting zip entry")
		}
		return nil
	}
	return errtypes.BadRequest("zip archive contains no file entry")
}

// CompressDir zips the contents of dir into dst.
func CompressDir(dir, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "compress: error creating archive")
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		zw.Close()
		return errors.Wrap(err, "compress: error archiving directory")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "compress: error finalizing archive")
	}
	return out.Close()
}

// DecompressDir extracts a zip archive into dir.
func DecompressDir(src, dir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrap(err, "compress: error opening archive")
	}
	defer zr.Close()

	for _, f := range zr.File {
		// Reject entries escaping the destination directory.
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return errtypes.BadRequest("archive entry escapes destination: " + f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrap(err, "compress: error creating directory")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errors.Wrap(err, "compress: error creating directory")
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrap(err, "compress: error opening archive entry")
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return errors.Wrap(err, "compress: error creating file")
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "compress: error extracting entry")
		}
	}
	return nil
}
