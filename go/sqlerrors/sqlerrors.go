// Copyright 2025 The Sqlbridge Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlerrors defines the error taxonomy shared by the pool, the
// execution engine and the boundary surface. Every error that crosses the
// boundary carries one of the numeric codes below; local misuse is reported
// as a UsageError and never reaches a callback.
package sqlerrors

import (
	"errors"
	"fmt"
)

// Code identifies the outcome class of an operation as seen by a foreign
// caller. The numeric values are part of the boundary contract and must not
// be renumbered.
type Code int32

const (
	// OK is the sentinel for "no error".
	OK Code = -1

	// Database means the server rejected the statement (syntax error,
	// constraint violation, authentication failure, ...). The message
	// carries the server's own text verbatim.
	Database Code = 0

	// PoolTimedOut means no connection lease became available within the
	// pool's acquire timeout.
	PoolTimedOut Code = 1

	// PoolClosed means the pool has begun shutdown and no longer hands
	// out leases.
	PoolClosed Code = 2

	// WorkerCrashed means the executing connection was lost mid-operation.
	// It is distinct from Database so callers can decide to retry on a
	// fresh lease.
	WorkerCrashed Code = 3
)

// String returns the boundary name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Database:
		return "DATABASE"
	case PoolTimedOut:
		return "POOL_TIMED_OUT"
	case PoolClosed:
		return "POOL_CLOSED"
	case WorkerCrashed:
		return "WORKER_CRASHED"
	default:
		return fmt.Sprintf("CODE(%d)", int32(c))
	}
}

// Error is an error with a boundary code attached. The message is carried
// verbatim; it is never rewritten on the way to the caller.
type Error struct {
	Code    Code
	Message string
	// Cause is the underlying error, if any. It is preserved for
	// errors.Is/As chains but the boundary only ever sees Message.
	Cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns an Error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error, keeping its message verbatim.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Cause: err}
}

// CodeOf extracts the boundary code from an error chain. A nil error maps
// to OK. An error without an attached code is reported as Database, which
// is the conservative choice: it tells the caller not to retry blindly.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return Database
	}
	return Database
}

// UsageError reports local, synchronous misuse of the API: operating on a
// terminated transaction, dereferencing a freed handle, and the like. It is
// rejected at submission time without any I/O and therefore never appears
// inside a result frame.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NewUsage returns a UsageError with a formatted message.
func NewUsage(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// IsUsage reports whether err is a UsageError.
func IsUsage(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
