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
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files of a deposit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDepID(); err != nil {
			return err
		}

		q := url.Values{}
		q.Set("repositoryType", repositoryType)
		q.Set("depId", depID)

		var out struct {
			Files []string `json:"files"`
		}
		if err := doJSON(cmd.Context(), "GET", "/filemgr/list", q, nil, "", &out); err != nil {
			return err
		}
		for _, f := range out.Files {
			fmt.Println(f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
