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

package commands

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	uploadResumable  bool
	uploadOverwrite  bool
	uploadCompress   bool
	uploadDecompress bool
	uploadChunkSize  int64
	uploadParallel   int
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files in chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDepID(); err != nil {
			return err
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(uploadParallel)
		for _, file := range args {
			g.Go(func() error { return uploadFile(ctx, file) })
		}
		return g.Wait()
	},
}

func init() {
	f := uploadCmd.Flags()
	f.BoolVarP(&uploadResumable, "resumable", "r", false, "resume an interrupted upload")
	f.BoolVarP(&uploadOverwrite, "overwrite", "o", false, "allow overwriting an existing version")
	f.BoolVarP(&uploadCompress, "compress", "z", false, "gzip each chunk on the wire")
	f.BoolVarP(&uploadDecompress, "decompress", "x", false, "decompress on the server after upload")
	f.Int64Var(&uploadChunkSize, "chunk-size", 8<<20, "chunk size in bytes")
	f.IntVar(&uploadParallel, "parallel", 4, "maximum parallel file transfers")
	rootCmd.AddCommand(uploadCmd)
}

type uploadParams struct {
	FilePath   string `json:"filePath"`
	ChunkIndex int64  `json:"chunkIndex"`
	UploadID   string `json:"uploadId"`
}

type uploadResult struct {
	Complete   bool   `json:"complete"`
	FilePath   string `json:"filePath"`
	ChunkIndex int64  `json:"chunkIndex"`
}

func uploadFile(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	expected := (size + uploadChunkSize - 1) / uploadChunkSize
	if expected == 0 {
		expected = 1
	}

	sum, err := fileMD5(f)
	if err != nil {
		return err
	}

	q := logicalQuery()
	q.Set("allowOverwrite", strconv.FormatBool(uploadOverwrite))
	q.Set("resumable", strconv.FormatBool(uploadResumable))
	var params uploadParams
	if err := doJSON(ctx, "GET", "/fileio/upload-parameters", q, nil, "", &params); err != nil {
		return err
	}

	if params.ChunkIndex > 0 {
		fmt.Printf("%s: resuming at chunk %d/%d\n", file, params.ChunkIndex, expected)
	}
	if _, err := f.Seek(params.ChunkIndex*uploadChunkSize, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, uploadChunkSize)
	for idx := params.ChunkIndex; idx < expected; idx++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}

		var res uploadResult
		if err := postChunk(ctx, buf[:n], idx, expected, sum, size, strings.TrimPrefix(filepath.Ext(file), "."), &params, &res); err != nil {
			return fmt.Errorf("%s: chunk %d: %w", file, idx, err)
		}
		if res.Complete {
			fmt.Printf("%s: uploaded %s to %s\n", file, humanize.Bytes(uint64(size)), res.FilePath)
			return nil
		}
	}
	return fmt.Errorf("%s: server never reported completion", file)
}

func fileMD5(f *os.File) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func postChunk(ctx context.Context, data []byte, idx, expected int64, sum string, size int64, ext string, params *uploadParams, res *uploadResult) error {
	payload := data
	if uploadCompress {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		payload = zbuf.Bytes()
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"chunkSize":      strconv.FormatInt(uploadChunkSize, 10),
		"chunkIndex":     strconv.FormatInt(idx, 10),
		"expectedChunks": strconv.FormatInt(expected, 10),
		"uploadId":       params.UploadID,
		"hashType":       "MD5",
		"hashDigest":     sum,
		"filePath":       params.FilePath,
		"fileSize":       strconv.FormatInt(size, 10),
		"allowOverwrite": strconv.FormatBool(uploadOverwrite),
		"resumable":      strconv.FormatBool(uploadResumable),
		"extractChunk":   strconv.FormatBool(uploadCompress),
	}
	if uploadDecompress {
		fields["decompress"] = "true"
		fields["fileExtension"] = ext
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	pw, err := mw.CreateFormFile("chunk", "chunk")
	if err != nil {
		return err
	}
	if _, err := pw.Write(payload); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	return doJSON(ctx, "POST", "/fileio/upload", nil, &body, mw.FormDataContentType(), res)
}
