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

package fakesqldb

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"
)

// fakeDriver implements driver.Driver.
type fakeDriver struct {
	db *DB
}

// Open returns a new connection to the fake database.
func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	return d.db.Connect(context.Background())
}

// fakeConn implements driver.Conn. Once a crash query kills it, every
// later call fails with driver.ErrBadConn, the same way a real driver
// reports a lost socket.
type fakeConn struct {
	db     *DB
	broken atomic.Bool
}

// run resolves a query, tripping the broken latch on a scripted crash.
func (c *fakeConn) run(query string) (*ExpectedResult, error) {
	if c.broken.Load() {
		return nil, driver.ErrBadConn
	}
	result, err := c.db.handleQuery(query)
	if errors.Is(err, driver.ErrBadConn) {
		c.broken.Store(true)
	}
	return result, err
}

// Prepare returns a prepared statement, bound to this connection.
func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	if c.broken.Load() {
		return nil, driver.ErrBadConn
	}
	return &fakeStmt{conn: c, query: query}, nil
}

// Close closes the connection.
func (c *fakeConn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *fakeConn) Begin() (driver.Tx, error) {
	if _, err := c.run("begin"); err != nil {
		return nil, err
	}
	return &fakeTx{conn: c}, nil
}

// QueryContext executes a query that may return rows.
func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	result, err := c.run(query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{
		columns: result.Columns,
		kinds:   result.Kinds,
		rows:    result.Rows,
	}, nil
}

// ExecContext executes a query that doesn't return rows.
func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	result, err := c.run(query)
	if err != nil {
		return nil, err
	}
	affected := result.RowsAffected
	if affected == 0 {
		affected = int64(len(result.Rows))
	}
	return &fakeResult{rowsAffected: affected}, nil
}

// fakeStmt implements driver.Stmt.
type fakeStmt struct {
	conn  *fakeConn
	query string
}

func (s *fakeStmt) Close() error {
	return nil
}

// NumInput returns -1, meaning the driver doesn't know.
func (s *fakeStmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows.
func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, nil)
}

// Query executes a query that may return rows.
func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, nil)
}

// fakeTx implements driver.Tx. Commit and rollback run through the query
// script so crashes and rejections can be injected on them too.
type fakeTx struct {
	conn *fakeConn
}

func (tx *fakeTx) Commit() error {
	_, err := tx.conn.run("commit")
	return err
}

func (tx *fakeTx) Rollback() error {
	_, err := tx.conn.run("rollback")
	return err
}

// fakeResult implements driver.Result.
type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r *fakeResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// fakeRows implements driver.Rows and, when kinds are scripted,
// driver.RowsColumnTypeDatabaseTypeName.
type fakeRows struct {
	columns []string
	kinds   []string
	rows    [][]any
	index   int
}

func (r *fakeRows) Columns() []string {
	return r.columns
}

// ColumnTypeDatabaseTypeName reports the scripted kind for a column,
// empty when the script declared none.
func (r *fakeRows) ColumnTypeDatabaseTypeName(index int) string {
	if index < len(r.kinds) {
		return r.kinds[index]
	}
	return ""
}

func (r *fakeRows) Close() error {
	return nil
}

// Next populates dest with the next row of data.
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.index >= len(r.rows) {
		return io.EOF
	}
	row := r.rows[r.index]
	r.index++
	if len(dest) != len(row) {
		return errors.New("fakesqldb: destination slice length doesn't match row length")
	}
	for i, val := range row {
		dest[i] = val
	}
	return nil
}

var (
	_ driver.Connector                      = (*DB)(nil)
	_ driver.Driver                         = (*fakeDriver)(nil)
	_ driver.Conn                           = (*fakeConn)(nil)
	_ driver.QueryerContext                 = (*fakeConn)(nil)
	_ driver.ExecerContext                  = (*fakeConn)(nil)
	_ driver.Stmt                           = (*fakeStmt)(nil)
	_ driver.Tx                             = (*fakeTx)(nil)
	_ driver.Result                         = (*fakeResult)(nil)
	_ driver.Rows                           = (*fakeRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*fakeRows)(nil)
)
