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

// Package token defines the bearer-token contract used to gate the
// non-public routes.
package token

import "context"

// Manager mints and verifies bearer tokens.
type Manager interface {
	// MintToken returns a signed token for the subject.
	MintToken(ctx context.Context, subject string) (string, error)
	// DismantleToken verifies a token and returns its subject.
	DismantleToken(ctx context.Context, tkn string) (string, error)
}
