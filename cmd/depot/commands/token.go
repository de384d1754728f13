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
	"strings"

	"github.com/spf13/cobra"
)

var tokenSecret string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token with the shared secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form := url.Values{}
		form.Set("secret", tokenSecret)

		var out struct {
			Token   string `json:"token"`
			Subject string `json:"subject"`
		}
		body := strings.NewReader(form.Encode())
		if err := doJSON(cmd.Context(), "POST", "/token/", nil, body, "application/x-www-form-urlencoded", &out); err != nil {
			return err
		}
		fmt.Println(out.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "shared jwt secret")
	_ = tokenCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(tokenCmd)
}
