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

package fileio

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rcsb/depot/pkg/errtypes"
)

// StatusCode maps error kinds to HTTP status codes. It is the single
// place where the mapping lives; every service routes errors through
// here.
func StatusCode(err error) int {
	switch err.(type) {
	case errtypes.IsBadRequest, errtypes.IsChecksumMismatch, errtypes.IsLockTimeout:
		return http.StatusBadRequest
	case errtypes.IsPermissionDenied, errtypes.IsAlreadyExists:
		return http.StatusForbidden
	case errtypes.IsNotFound:
		return http.StatusNotFound
	case errtypes.IsInvalidCredentials:
		return http.StatusUnauthorized
	case errtypes.IsNotSupported:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError renders err as a JSON error body with the mapped status.
func WriteError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("request failed")
	}
	WriteJSON(w, code, errorBody{Error: err.Error()})
}

// WriteJSON renders v as a JSON response body.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
