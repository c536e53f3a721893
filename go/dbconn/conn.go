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

// Package dbconn adapts database/sql/driver connections to the pool's
// Connection interface and materializes query outcomes as sqltypes
// results. It operates below database/sql on purpose: pooling is owned by
// pools/connpool, not by the standard library's built-in pool.
package dbconn

import (
	"context"
	"database/sql/driver"
	"io"
	"sync/atomic"

	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
	"github.com/sqlbridge/sqlbridge/go/sqltypes"
)

// Conn is one physical connection to the server. It is not safe for
// concurrent use; exclusivity is enforced by the pool lease that wraps it.
type Conn struct {
	raw    driver.Conn
	closed atomic.Bool
}

// Connect dials a new connection through the given connector. Dial and
// authentication failures come back as Database errors carrying the
// driver's message.
func Connect(ctx context.Context, connector driver.Connector) (*Conn, error) {
	raw, err := connector.Connect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &Conn{raw: raw}, nil
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.raw.Close()
}

// IsClosed reports whether the connection has been torn down or was lost
// mid-operation.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Fail classifies err and, when it signals connection loss, marks the
// connection closed so the pool discards it instead of reusing it. Callers
// that run statements through a driver.Tx use it to report errors that
// bypass Exec and Query.
func (c *Conn) Fail(err error) error {
	cerr := classify(err)
	if sqlerrors.CodeOf(cerr) == sqlerrors.WorkerCrashed {
		c.closed.Store(true)
	}
	return cerr
}

// Exec runs a statement that is expected to mutate rows and returns the
// affected-row count.
func (c *Conn) Exec(ctx context.Context, query string) (*sqltypes.Result, error) {
	if c.IsClosed() {
		return nil, &sqlerrors.Error{Code: sqlerrors.WorkerCrashed, Message: "WorkerCrashed"}
	}

	res, err := c.exec(ctx, query)
	if err != nil {
		return nil, c.Fail(err)
	}

	affected, err := res.RowsAffected()
	if err != nil || affected < 0 {
		affected = 0
	}
	return &sqltypes.Result{RowsAffected: uint64(affected)}, nil
}

func (c *Conn) exec(ctx context.Context, query string) (driver.Result, error) {
	if ec, ok := c.raw.(driver.ExecerContext); ok {
		return ec.ExecContext(ctx, query, nil)
	}

	stmt, err := c.raw.Prepare(query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	return stmt.Exec(nil) //nolint:staticcheck // fallback for drivers without ExecerContext
}

// Query runs a statement that is expected to return rows and materializes
// the entire row set. The schema is built once per call from the driver's
// column metadata; values are encoded to their textual form with a
// declared kind, NULL staying the distinguished nil marker.
func (c *Conn) Query(ctx context.Context, query string) (*sqltypes.Result, error) {
	if c.IsClosed() {
		return nil, &sqlerrors.Error{Code: sqlerrors.WorkerCrashed, Message: "WorkerCrashed"}
	}

	rows, err := c.query(ctx, query)
	if err != nil {
		return nil, c.Fail(err)
	}
	defer rows.Close()

	cols := rows.Columns()
	kinds := make([]string, len(cols))
	if ct, ok := rows.(driver.RowsColumnTypeDatabaseTypeName); ok {
		for i := range cols {
			kinds[i] = ct.ColumnTypeDatabaseTypeName(i)
		}
	}

	fields := make([]*sqltypes.Field, len(cols))
	for i, name := range cols {
		fields[i] = &sqltypes.Field{Ordinal: int32(i), Name: name, Kind: kinds[i]}
	}

	result := &sqltypes.Result{Fields: fields}
	dest := make([]driver.Value, len(cols))
	for {
		err := rows.Next(dest)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Loss of the connection mid-row-set is a worker crash,
			// not a statement rejection.
			return nil, c.Fail(err)
		}

		values := make([]sqltypes.Value, len(cols))
		for i, v := range dest {
			kind, val := sqltypes.Encode(v, kinds[i])
			if fields[i].Kind == "" {
				fields[i].Kind = kind
			}
			values[i] = val
		}
		result.Rows = append(result.Rows, &sqltypes.Row{Values: values})
	}

	for _, f := range fields {
		if f.Kind == "" {
			f.Kind = sqltypes.KindText
		}
	}
	return result, nil
}

func (c *Conn) query(ctx context.Context, query string) (driver.Rows, error) {
	if qc, ok := c.raw.(driver.QueryerContext); ok {
		return qc.QueryContext(ctx, query, nil)
	}

	stmt, err := c.raw.Prepare(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(nil) //nolint:staticcheck // fallback for drivers without QueryerContext
	if err != nil {
		stmt.Close()
		return nil, err
	}
	return &stmtRows{Rows: rows, stmt: stmt}, nil
}

// stmtRows closes the prepared statement together with its rows on the
// fallback query path.
type stmtRows struct {
	driver.Rows
	stmt driver.Stmt
}

func (r *stmtRows) Close() error {
	err := r.Rows.Close()
	if cerr := r.stmt.Close(); err == nil {
		err = cerr
	}
	return err
}

// Begin opens a server transaction on this connection.
func (c *Conn) Begin(ctx context.Context) (driver.Tx, error) {
	if c.IsClosed() {
		return nil, &sqlerrors.Error{Code: sqlerrors.WorkerCrashed, Message: "WorkerCrashed"}
	}

	if bt, ok := c.raw.(driver.ConnBeginTx); ok {
		tx, err := bt.BeginTx(ctx, driver.TxOptions{})
		if err != nil {
			return nil, c.Fail(err)
		}
		return tx, nil
	}
	tx, err := c.raw.Begin() //nolint:staticcheck // fallback for drivers without ConnBeginTx
	if err != nil {
		return nil, c.Fail(err)
	}
	return tx, nil
}
