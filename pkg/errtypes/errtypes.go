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

// Package errtypes contains definitions for common error kinds.
// It would have been nice to call this package errors, err or error
// but errors clashes with github.com/pkg/errors, err is used for any
// error variable and error is a reserved word :)
package errtypes

// NotFound is the error to use when a file or record is not found.
type NotFound string

func (e NotFound) Error() string { return "error: not found: " + string(e) }

// IsNotFound implements the IsNotFound interface.
func (e NotFound) IsNotFound() {}

// BadRequest is the error to use when a request carries invalid or
// inconsistent parameters.
type BadRequest string

func (e BadRequest) Error() string { return "error: bad request: " + string(e) }

// IsBadRequest implements the IsBadRequest interface.
func (e BadRequest) IsBadRequest() {}

// PermissionDenied is the error to use when an operation is refused,
// for example an overwrite of an existing version.
type PermissionDenied string

func (e PermissionDenied) Error() string { return "error: permission denied: " + string(e) }

// IsPermissionDenied implements the IsPermissionDenied interface.
func (e PermissionDenied) IsPermissionDenied() {}

// AlreadyExists is the error to use when a target file already exists.
type AlreadyExists string

func (e AlreadyExists) Error() string { return "error: already exists: " + string(e) }

// IsAlreadyExists implements the IsAlreadyExists interface.
func (e AlreadyExists) IsAlreadyExists() {}

// LockTimeout is the error to use when a lock could not be acquired
// within its deadline.
type LockTimeout string

func (e LockTimeout) Error() string { return "error: lock timeout: " + string(e) }

// IsLockTimeout implements the IsLockTimeout interface.
func (e LockTimeout) IsLockTimeout() {}

// ChecksumMismatch is the error to use when the digest or size of an
// uploaded file does not match the client's claim.
type ChecksumMismatch string

func (e ChecksumMismatch) Error() string { return "error: checksum mismatch: " + string(e) }

// IsChecksumMismatch implements the IsChecksumMismatch interface.
func (e ChecksumMismatch) IsChecksumMismatch() {}

// InvalidCredentials is the error to use when receiving an invalid or
// expired bearer token.
type InvalidCredentials string

func (e InvalidCredentials) Error() string { return "error: invalid credentials: " + string(e) }

// IsInvalidCredentials implements the IsInvalidCredentials interface.
func (e InvalidCredentials) IsInvalidCredentials() {}

// NotSupported is the error to use when an action is not supported.
type NotSupported string

func (e NotSupported) Error() string { return "error: not supported: " + string(e) }

// IsNotSupported implements the IsNotSupported interface.
func (e NotSupported) IsNotSupported() {}

// InternalError is the error to use for unexpected failures.
type InternalError string

func (e InternalError) Error() string { return "internal error: " + string(e) }

// IsInternalError implements the IsInternalError interface.
func (e InternalError) IsInternalError() {}

// IsNotFound is the interface to implement to specify that a file or
// record is not found.
type IsNotFound interface {
	IsNotFound()
}

// IsBadRequest is the interface to implement to specify that request
// parameters were invalid.
type IsBadRequest interface {
	IsBadRequest()
}

// IsPermissionDenied is the interface to implement to specify that an
// operation was refused.
type IsPermissionDenied interface {
	IsPermissionDenied()
}

// IsAlreadyExists is the interface to implement to specify that a
// target already exists.
type IsAlreadyExists interface {
	IsAlreadyExists()
}

// IsLockTimeout is the interface to implement to specify that a lock
// deadline elapsed.
type IsLockTimeout interface {
	IsLockTimeout()
}

// IsChecksumMismatch is the interface to implement to specify that
// integrity verification failed.
type IsChecksumMismatch interface {
	IsChecksumMismatch()
}

// IsInvalidCredentials is the interface to implement to specify that
// credentials were wrong.
type IsInvalidCredentials interface {
	IsInvalidCredentials()
}

// IsNotSupported is the interface to implement to specify that an
// action is not supported.
type IsNotSupported interface {
	IsNotSupported()
}

// IsInternalError is the interface to implement to specify an
// unexpected failure.
type IsInternalError interface {
	IsInternalError()
}
