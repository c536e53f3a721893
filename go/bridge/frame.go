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

package bridge

import (
	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
	"github.com/sqlbridge/sqlbridge/go/sqltypes"
)

// Frame is the flat outcome of one submitted operation. Exactly one of
// three shapes is populated and they are mutually exclusive by
// construction:
//
//   - an error: Code != OK and Message carries the text verbatim;
//   - a success: RowsAffected, plus Tx or Cn when the operation opened a
//     transaction or acquired a connection;
//   - a row set: Schema and Rows.
//
// A frame stays valid until the caller releases it through
// Client.FreeResult; after that every handle and slice inside it is dead.
type Frame struct {
	handle uint64

	Code    sqlerrors.Code
	Message string

	RowsAffected uint64

	// Tx and Cn are opaque handles to a transaction or an acquired
	// connection, zero when the operation produced neither.
	Tx uint64
	Cn uint64

	Schema []*sqltypes.Field
	Rows   []*sqltypes.Row
}

// Handle returns the frame's opaque identifier for FreeResult.
func (f *Frame) Handle() uint64 {
	return f.handle
}

// IsError reports whether the frame carries an error outcome.
func (f *Frame) IsError() bool {
	return f.Code != sqlerrors.OK
}

// newFrame folds an execution outcome into a frame and registers it for
// later release. Exactly one shape is filled in.
func (c *Client) newFrame(res *sqltypes.Result, err error) *Frame {
	f := &Frame{Code: sqlerrors.OK}
	switch {
	case err != nil:
		f.Code = sqlerrors.CodeOf(err)
		f.Message = err.Error()
	case res != nil && res.IsRowSet():
		f.Schema = res.Fields
		f.Rows = res.Rows
	case res != nil:
		f.RowsAffected = res.RowsAffected
	}
	f.handle = c.results.put(f)
	return f
}

// FreeResult releases a frame delivered through a callback. Every frame
// must be released exactly once; releasing an unknown or already released
// handle is a usage error.
func (c *Client) FreeResult(handle uint64) error {
	f, err := c.results.take(handle)
	if err != nil {
		return err
	}
	f.Schema = nil
	f.Rows = nil
	f.Message = ""
	return nil
}
