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

package dbconn

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

// connectionErrorPatterns are error strings that indicate the physical
// connection is gone rather than the server rejecting a statement.
var connectionErrorPatterns = []string{
	"broken pipe",
	"connection reset",
	"connection refused",
	"use of closed network connection",
	"unexpected EOF",
	"bad connection",
}

// isConnectionError reports whether err means the executing connection
// was lost, as opposed to the server rejecting the statement. The two
// must stay distinguishable so callers can decide whether retrying on a
// fresh lease makes sense.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classify maps a driver error to the boundary taxonomy: a lost
// connection becomes WorkerCrashed, everything else is a Database error
// carrying the server's message verbatim. Postgres errors are prefixed
// with their SQLSTATE in brackets.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlerrors.Error
	if errors.As(err, &se) {
		return se
	}
	if isConnectionError(err) {
		return &sqlerrors.Error{Code: sqlerrors.WorkerCrashed, Message: "WorkerCrashed", Cause: err}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code != "" {
		return sqlerrors.Newf(sqlerrors.Database, "[%s] %s", string(pqErr.Code), pqErr.Message)
	}
	return sqlerrors.Wrap(sqlerrors.Database, err)
}
