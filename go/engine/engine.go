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

// Package engine runs statements against pooled connections. Every
// operation acquires a lease, runs exactly one statement and releases the
// lease, no matter how the statement ends. Transactions pin a lease for
// their whole lifetime; see Tx.
package engine

import (
	"context"
	"log/slog"

	"github.com/sqlbridge/sqlbridge/go/dbconn"
	"github.com/sqlbridge/sqlbridge/go/pools/connpool"
	"github.com/sqlbridge/sqlbridge/go/sqltypes"
)

// Engine executes statements on connections drawn from a pool.
type Engine struct {
	pool   *connpool.Pool[*dbconn.Conn]
	logger *slog.Logger
}

// Config collects what Open needs to build an engine.
type Config struct {
	Params dbconn.Params
	Pool   *connpool.Config
}

// Open resolves the connect parameters, builds the pool and dials its
// minimum connections. On any failure the pool is torn down and the error
// returned as-is.
func Open(ctx context.Context, config Config) (*Engine, error) {
	connector, err := dbconn.NewConnector(config.Params)
	if err != nil {
		return nil, err
	}

	pool := connpool.NewPool[*dbconn.Conn](config.Pool)
	if err := pool.Open(ctx, func(ctx context.Context) (*dbconn.Conn, error) {
		return dbconn.Connect(ctx, connector)
	}); err != nil {
		return nil, err
	}

	logger := config.Pool.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pool: pool, logger: logger}, nil
}

// NewEngine wraps an already opened pool. Tests use this to substitute a
// pool backed by a fake driver.
func NewEngine(pool *connpool.Pool[*dbconn.Conn], logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pool: pool, logger: logger}
}

// Execute runs a statement that produces no row set and reports the number
// of affected rows. The lease is acquired for this single statement.
func (e *Engine) Execute(ctx context.Context, query string) (*sqltypes.Result, error) {
	lease, err := e.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Recycle()
	return lease.Conn.Exec(ctx, query)
}

// FetchAll runs a statement and materializes its complete row set. The
// lease is acquired for this single statement.
func (e *Engine) FetchAll(ctx context.Context, query string) (*sqltypes.Result, error) {
	lease, err := e.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Recycle()
	return lease.Conn.Query(ctx, query)
}

// Acquire hands out a raw lease. The caller owns it until Recycle.
func (e *Engine) Acquire(ctx context.Context) (*connpool.Pooled[*dbconn.Conn], error) {
	return e.pool.Get(ctx)
}

// Pool exposes the underlying pool for size and stats queries.
func (e *Engine) Pool() *connpool.Pool[*dbconn.Conn] {
	return e.pool
}

// Close shuts down the pool. It blocks until every outstanding lease has
// been returned.
func (e *Engine) Close() {
	e.pool.Close()
}
