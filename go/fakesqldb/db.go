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

// Package fakesqldb provides a scripted fake SQL server for tests. It
// implements driver.Connector, so anything that speaks database/sql/driver
// can run against it, and it counts every query it receives so tests can
// assert that an operation issued no I/O.
package fakesqldb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// DB is a fake SQL database. All methods are thread-safe.
type DB struct {
	t    testing.TB
	name string

	// connCount counts successful Connect calls over the DB's lifetime.
	connCount atomic.Int64

	// mu protects all the following fields.
	mu sync.Mutex

	// data maps tolower(query) to a scripted result.
	data map[string]*ExpectedResult

	// rejected maps tolower(query) to the error the server returns.
	rejected map[string]error

	// crashes holds tolower(query) entries that kill the connection
	// instead of answering.
	crashes map[string]bool

	// queryCalled counts how many times each query reached the server.
	queryCalled map[string]int

	// querylog keeps every received query in order.
	querylog []string

	// connectErr, when set, makes Connect fail.
	connectErr error
}

// ExpectedResult holds the scripted data for a matched query.
type ExpectedResult struct {
	Columns []string
	// Kinds optionally declares a database type name per column. When
	// empty the driver reports no type information.
	Kinds []string
	Rows  [][]any
	// RowsAffected overrides the affected-row count; when zero the count
	// defaults to len(Rows).
	RowsAffected int64
	// BeforeFunc is called synchronously before the result is returned.
	BeforeFunc func()
}

// New creates a fake database for one test.
func New(t testing.TB) *DB {
	return &DB{
		t:           t,
		name:        "fakesqldb",
		data:        make(map[string]*ExpectedResult),
		rejected:    make(map[string]error),
		crashes:     make(map[string]bool),
		queryCalled: make(map[string]int),
	}
}

// Connect implements driver.Connector.
func (db *DB) Connect(context.Context) (driver.Conn, error) {
	db.mu.Lock()
	err := db.connectErr
	db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	db.connCount.Add(1)
	return &fakeConn{db: db}, nil
}

// Driver implements driver.Connector.
func (db *DB) Driver() driver.Driver {
	return &fakeDriver{db: db}
}

// ConnCount returns how many connections have been opened against the DB.
func (db *DB) ConnCount() int64 {
	return db.connCount.Load()
}

// SetConnectError makes subsequent Connect calls fail with err; nil
// restores normal dialing.
func (db *DB) SetConnectError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connectErr = err
}

// AddQuery adds a query and its scripted result.
func (db *DB) AddQuery(query string, result *ExpectedResult) *ExpectedResult {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(query)
	db.data[key] = result
	db.queryCalled[key] = 0
	return result
}

// AddRejectedQuery makes the server reject query with err, as a statement
// error on a healthy connection.
func (db *DB) AddRejectedQuery(query string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rejected[strings.ToLower(query)] = err
}

// AddCrashQuery makes query kill its connection: the statement fails with
// driver.ErrBadConn and every later use of that connection fails the same
// way.
func (db *DB) AddCrashQuery(query string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.crashes[strings.ToLower(query)] = true
}

// GetQueryCalledNum returns how many times the server saw query.
func (db *DB) GetQueryCalledNum(query string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryCalled[strings.ToLower(query)]
}

// QueryLog returns every received query as a semicolon separated string.
func (db *DB) QueryLog() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return strings.Join(db.querylog, ";")
}

// ResetQueryLog resets the query log.
func (db *DB) ResetQueryLog() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.querylog = nil
}

// handleQuery records the query and resolves it against the script.
func (db *DB) handleQuery(query string) (*ExpectedResult, error) {
	key := strings.ToLower(query)
	db.mu.Lock()
	db.queryCalled[key]++
	db.querylog = append(db.querylog, key)

	if db.crashes[key] {
		db.mu.Unlock()
		return nil, driver.ErrBadConn
	}
	if err, ok := db.rejected[key]; ok {
		db.mu.Unlock()
		return nil, err
	}
	result, ok := db.data[key]
	db.mu.Unlock()
	if !ok {
		// Unscripted control statements succeed so tests only script
		// begin/commit/rollback when they want to break them.
		switch key {
		case "begin", "commit", "rollback":
			return &ExpectedResult{}, nil
		}
		return nil, fmt.Errorf("fakesqldb: query '%s' is not supported on %v", query, db.name)
	}
	if f := result.BeforeFunc; f != nil {
		f()
	}
	return result, nil
}
