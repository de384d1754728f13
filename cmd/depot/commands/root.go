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

// Package commands implements the depot CLI commands.
package commands

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string

	repositoryType string
	depID          string
	contentType    string
	milestone      string
	partNumber     int
	contentFormat  string
	version        string
)

var rootCmd = &cobra.Command{
	Use:           "depot",
	Short:         "Client for the deposition file service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "depot: %v\n", err)
		return err
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverURL, "server", "s", envOr("DEPOT_SERVER", "http://localhost:8000"), "server base URL")
	pf.StringVarP(&authToken, "token", "t", os.Getenv("DEPOT_TOKEN"), "bearer token")

	pf.StringVar(&repositoryType, "repository", "deposit", "repository type")
	pf.StringVar(&depID, "dep-id", "", "deposit id")
	pf.StringVar(&contentType, "content-type", "model", "content type")
	pf.StringVar(&milestone, "milestone", "none", "milestone")
	pf.IntVar(&partNumber, "part", 1, "part number")
	pf.StringVar(&contentFormat, "format", "pdbx", "content format")
	pf.StringVar(&version, "file-version", "", "file version (integer or symbolic)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// logicalQuery encodes the logical file flags as query values.
func logicalQuery() url.Values {
	q := url.Values{}
	q.Set("repositoryType", repositoryType)
	q.Set("depId", depID)
	q.Set("contentType", contentType)
	q.Set("milestone", milestone)
	q.Set("partNumber", fmt.Sprint(partNumber))
	q.Set("contentFormat", contentFormat)
	if version != "" {
		q.Set("version", version)
	}
	return q
}

func requireDepID() error {
	if depID == "" {
		return fmt.Errorf("--dep-id is required")
	}
	return nil
}
