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

// Package registry holds the constructors of the KV store drivers.
package registry

import "github.com/rcsb/depot/pkg/kv"

// NewFunc is the function that KV store implementations register at
// init time to be created from a configuration map.
type NewFunc func(map[string]interface{}) (kv.Store, error)

// NewFuncs is a map containing all the registered KV store backends.
var NewFuncs = map[string]NewFunc{}

// Register registers a new KV store driver constructor. Not
// safe for concurrent use, safe for use from package init.
func Register(name string, f NewFunc) {
	NewFuncs[name] = f
}
