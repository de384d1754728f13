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

// Package loader registers every HTTP service into the global
// registry.
package loader

import (
	// Load HTTP services.
	_ "github.com/rcsb/depot/internal/http/services/adminsvc"
	_ "github.com/rcsb/depot/internal/http/services/fileio"
	_ "github.com/rcsb/depot/internal/http/services/filemgr"
	_ "github.com/rcsb/depot/internal/http/services/health"
	_ "github.com/rcsb/depot/internal/http/services/prometheus"
	_ "github.com/rcsb/depot/internal/http/services/tokensvc"
)
