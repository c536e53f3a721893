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

// Package bridge is the boundary surface of the client: submission calls
// return immediately, outcomes arrive later as a Frame through a callback
// invoked exactly once per submission, and frames live until the caller
// releases them with FreeResult.
//
// Misuse of the API (a freed handle, a terminated transaction) is rejected
// synchronously from the submission call with a UsageError; the callback
// never fires for it. Frames delivered through callbacks carry only the
// boundary codes of package sqlerrors.
package bridge

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sqlbridge/sqlbridge/go/dbconn"
	"github.com/sqlbridge/sqlbridge/go/engine"
	"github.com/sqlbridge/sqlbridge/go/pools/connpool"
	"github.com/sqlbridge/sqlbridge/go/sqltypes"
)

// Callback receives the outcome of one submitted operation. It is invoked
// exactly once, on a goroutine owned by the client, and must not block for
// long: it stalls no other submission but does stall the frame delivery
// pipeline for its own operation chain.
type Callback func(frame *Frame)

type lease = connpool.Pooled[*dbconn.Conn]

// Client is the boundary object. All operations are safe for concurrent
// use; operations on the same transaction or acquired connection are
// serialized by the callee.
type Client struct {
	engine *engine.Engine
	logger *slog.Logger

	txs     *handleTable[*engine.Tx]
	cns     *handleTable[*lease]
	results *handleTable[*Frame]
}

// Open connects to the server described by config and returns a ready
// client. It dials the pool's minimum connections eagerly, so an
// unreachable server or bad credentials fail here, synchronously.
func Open(ctx context.Context, config engine.Config) (*Client, error) {
	eng, err := engine.Open(ctx, config)
	if err != nil {
		return nil, err
	}
	logger := config.Pool.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return NewClient(eng, logger), nil
}

// NewClient wraps an existing engine. Tests use this with a fake-backed
// engine.
func NewClient(eng *engine.Engine, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		engine:  eng,
		logger:  logger,
		txs:     newHandleTable[*engine.Tx]("transaction"),
		cns:     newHandleTable[*lease]("connection"),
		results: newHandleTable[*Frame]("result"),
	}
}

// dispatch runs one operation on its own goroutine and delivers its frame
// to the callback exactly once.
func (c *Client) dispatch(op string, callback Callback, run func(ctx context.Context) (*sqltypes.Result, error)) {
	id := uuid.New()
	go func() {
		res, err := run(context.Background())
		frame := c.newFrame(res, err)
		c.logger.Debug("operation complete",
			"op", op,
			"op_id", id,
			"code", frame.Code,
		)
		callback(frame)
	}()
}

// Close shuts the pool down and reports through the callback once every
// in-flight lease has drained. Submissions racing with Close complete with
// a POOL_CLOSED frame.
func (c *Client) Close(callback Callback) {
	c.dispatch("close", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		c.engine.Close()
		return nil, nil
	})
}

// PoolSize returns the number of open connections, zero after Close.
func (c *Client) PoolSize() int {
	return c.engine.Pool().Size()
}

// PoolIdleSize returns the number of idle connections, zero after Close.
func (c *Client) PoolIdleSize() int {
	return c.engine.Pool().IdleSize()
}

// Stats returns the pool's lifetime counters. Valid at any time, including
// after Close.
func (c *Client) Stats() connpool.PoolStats {
	return c.engine.Pool().Stats()
}

// Query submits a mutating statement. The frame carries rows affected.
func (c *Client) Query(sql string, callback Callback) {
	c.dispatch("query", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return c.engine.Execute(ctx, sql)
	})
}

// FetchAll submits a row-returning statement. The whole row set is
// materialized before the callback fires.
func (c *Client) FetchAll(sql string, callback Callback) {
	c.dispatch("fetch_all", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return c.engine.FetchAll(ctx, sql)
	})
}

// TxBegin opens a transaction on a freshly acquired lease. On success the
// frame's Tx field holds the transaction handle.
func (c *Client) TxBegin(callback Callback) {
	id := uuid.New()
	go func() {
		tx, err := c.engine.Begin(context.Background())
		var frame *Frame
		if err != nil {
			frame = c.newFrame(nil, err)
		} else {
			frame = c.newFrame(nil, nil)
			frame.Tx = c.txs.put(tx)
		}
		c.logger.Debug("operation complete", "op", "tx_begin", "op_id", id, "code", frame.Code)
		callback(frame)
	}()
}

// TxQuery submits a mutating statement inside a transaction. A stale
// handle is rejected synchronously and the callback does not fire.
func (c *Client) TxQuery(tx uint64, sql string, callback Callback) error {
	t, err := c.txs.get(tx)
	if err != nil {
		return err
	}
	c.dispatch("tx_query", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return t.Execute(ctx, sql)
	})
	return nil
}

// TxFetchAll submits a row-returning statement inside a transaction.
func (c *Client) TxFetchAll(tx uint64, sql string, callback Callback) error {
	t, err := c.txs.get(tx)
	if err != nil {
		return err
	}
	c.dispatch("tx_fetch_all", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return t.FetchAll(ctx, sql)
	})
	return nil
}

// TxCommit commits and invalidates the transaction handle. The handle is
// consumed at submission, so a second commit or rollback on it is a
// synchronous usage error. The lease is released whether or not the server
// accepts the commit.
func (c *Client) TxCommit(tx uint64, callback Callback) error {
	t, err := c.txs.take(tx)
	if err != nil {
		return err
	}
	c.dispatch("tx_commit", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return nil, t.Commit(ctx)
	})
	return nil
}

// TxRollback rolls back and invalidates the transaction handle. Like
// TxCommit, the lease is released under every outcome.
func (c *Client) TxRollback(tx uint64, callback Callback) error {
	t, err := c.txs.take(tx)
	if err != nil {
		return err
	}
	c.dispatch("tx_rollback", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return nil, t.Rollback(ctx)
	})
	return nil
}

// CnAcquire leases a connection and hands its handle to the caller in the
// frame's Cn field. The caller owns the lease until CnRelease.
func (c *Client) CnAcquire(callback Callback) {
	id := uuid.New()
	go func() {
		l, err := c.engine.Acquire(context.Background())
		var frame *Frame
		if err != nil {
			frame = c.newFrame(nil, err)
		} else {
			frame = c.newFrame(nil, nil)
			frame.Cn = c.cns.put(l)
		}
		c.logger.Debug("operation complete", "op", "cn_acquire", "op_id", id, "code", frame.Code)
		callback(frame)
	}()
}

// CnRelease returns a leased connection to the pool and invalidates its
// handle. The handle is consumed at submission.
func (c *Client) CnRelease(cn uint64, callback Callback) error {
	l, err := c.cns.take(cn)
	if err != nil {
		return err
	}
	c.dispatch("cn_release", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		l.Recycle()
		return nil, nil
	})
	return nil
}

// CnQuery runs a mutating statement on a leased connection.
func (c *Client) CnQuery(cn uint64, sql string, callback Callback) error {
	l, err := c.cns.get(cn)
	if err != nil {
		return err
	}
	c.dispatch("cn_query", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return l.Conn.Exec(ctx, sql)
	})
	return nil
}

// CnFetchAll runs a row-returning statement on a leased connection.
func (c *Client) CnFetchAll(cn uint64, sql string, callback Callback) error {
	l, err := c.cns.get(cn)
	if err != nil {
		return err
	}
	c.dispatch("cn_fetch_all", callback, func(ctx context.Context) (*sqltypes.Result, error) {
		return l.Conn.Query(ctx, sql)
	})
	return nil
}

// CnTxBegin opens a transaction on an already leased connection. The
// transaction borrows the lease: commit and rollback end the transaction
// but the connection stays with the caller until CnRelease.
func (c *Client) CnTxBegin(cn uint64, callback Callback) error {
	l, err := c.cns.get(cn)
	if err != nil {
		return err
	}
	id := uuid.New()
	go func() {
		tx, err := engine.BeginOn(context.Background(), l)
		var frame *Frame
		if err != nil {
			frame = c.newFrame(nil, err)
		} else {
			frame = c.newFrame(nil, nil)
			frame.Tx = c.txs.put(tx)
		}
		c.logger.Debug("operation complete", "op", "cn_tx_begin", "op_id", id, "code", frame.Code)
		callback(frame)
	}()
	return nil
}
