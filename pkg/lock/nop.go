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

package lock

import (
	"context"
	"time"
)

type nopLocker struct{}

// NewNop returns a locker that grants every request immediately. It is
// used when lock transactions are disabled in the configuration.
func NewNop() Locker { return nopLocker{} }

func (nopLocker) Acquire(ctx context.Context, key string, mode Mode, timeout time.Duration) (*Held, error) {
	return NewHeld(func() error { return nil }), nil
}

func (nopLocker) Cleanup(ctx context.Context, maxAge time.Duration, all bool) error { return nil }

func (nopLocker) Close() error { return nil }
