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
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download one file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDepID(); err != nil {
			return err
		}
		return downloadFile(cmd)
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "O", "", "output file (default: server file name)")
	rootCmd.AddCommand(downloadCmd)
}

func downloadFile(cmd *cobra.Command) error {
	q := logicalQuery()
	if version == "" {
		q.Set("version", "latest")
	}

	req, err := newRequest(cmd.Context(), http.MethodGet, endpoint("/fileio/download", q), nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil && eb.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, eb.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	out := downloadOutput
	if out == "" {
		out = fmt.Sprintf("%s_%s_P%d.%s", depID, contentType, partNumber, contentFormat)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}

	h := newHash(resp.Header.Get("rcsb_hash_type"))
	w := io.Writer(f)
	if h != nil {
		w = io.MultiWriter(f, h)
	}
	n, err := io.Copy(w, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return err
	}

	if h != nil {
		want := resp.Header.Get("rcsb_hexdigest")
		if got := hex.EncodeToString(h.Sum(nil)); got != want {
			os.Remove(out)
			return fmt.Errorf("digest mismatch: got %s want %s", got, want)
		}
	}
	fmt.Printf("downloaded %s to %s\n", humanize.Bytes(uint64(n)), out)
	return nil
}

func newHash(algo string) hash.Hash {
	switch algo {
	case "MD5":
		return md5.New()
	case "SHA1":
		return sha1.New()
	case "SHA256":
		return sha256.New()
	default:
		return nil
	}
}
