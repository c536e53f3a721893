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

package engine

import (
	"context"
	"database/sql/driver"
	"sync"

	"github.com/sqlbridge/sqlbridge/go/dbconn"
	"github.com/sqlbridge/sqlbridge/go/pools/connpool"
	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
	"github.com/sqlbridge/sqlbridge/go/sqltypes"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txActive:
		return "active"
	case txCommitted:
		return "committed"
	default:
		return "rolled back"
	}
}

// Tx is a transaction pinned to a single pooled connection. It starts
// active and moves exactly once to committed or rolled back; the pinned
// lease is released on that transition and never again. Operations on a
// terminated transaction are rejected locally without touching the
// connection.
type Tx struct {
	mu        sync.Mutex
	state     txState
	lease     *connpool.Pooled[*dbconn.Conn]
	tx        driver.Tx
	ownsLease bool
}

// Begin acquires a lease and opens a transaction on it. If the server
// rejects the begin, the lease is released before the error is returned.
func (e *Engine) Begin(ctx context.Context) (*Tx, error) {
	lease, err := e.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := lease.Conn.Begin(ctx)
	if err != nil {
		lease.Recycle()
		return nil, err
	}
	return &Tx{lease: lease, tx: tx, ownsLease: true}, nil
}

// BeginOn opens a transaction on a lease the caller already holds. The
// caller keeps ownership of the lease: commit and rollback end the
// transaction but do not release it.
func BeginOn(ctx context.Context, lease *connpool.Pooled[*dbconn.Conn]) (*Tx, error) {
	tx, err := lease.Conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{lease: lease, tx: tx}, nil
}

// checkActive must be called with t.mu held.
func (t *Tx) checkActive() error {
	if t.state != txActive {
		return sqlerrors.NewUsage("transaction is %s; no further operations are allowed", t.state)
	}
	return nil
}

// Execute runs a statement inside the transaction.
func (t *Tx) Execute(ctx context.Context, query string) (*sqltypes.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.lease.Conn.Exec(ctx, query)
}

// FetchAll runs a statement inside the transaction and materializes its
// row set.
func (t *Tx) FetchAll(ctx context.Context, query string) (*sqltypes.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.lease.Conn.Query(ctx, query)
}

// Commit ends the transaction. The pinned lease is released whether or not
// the commit succeeds; a failed commit still leaves the transaction
// terminated.
func (t *Tx) Commit(ctx context.Context) error {
	return t.end(ctx, txCommitted)
}

// Rollback ends the transaction. Like Commit it always releases the lease.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.end(ctx, txRolledBack)
}

func (t *Tx) end(_ context.Context, next txState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	t.state = next

	var err error
	if next == txCommitted {
		err = t.tx.Commit()
	} else {
		err = t.tx.Rollback()
	}
	if err != nil {
		err = t.lease.Conn.Fail(err)
	}
	if t.ownsLease {
		t.lease.Recycle()
	}
	t.lease = nil
	t.tx = nil
	return err
}
