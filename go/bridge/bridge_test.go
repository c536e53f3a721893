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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sqlbridge/sqlbridge/go/dbconn"
	"github.com/sqlbridge/sqlbridge/go/engine"
	"github.com/sqlbridge/sqlbridge/go/fakesqldb"
	"github.com/sqlbridge/sqlbridge/go/pools/connpool"
	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, db *fakesqldb.DB, config *connpool.Config) *Client {
	t.Helper()
	if config == nil {
		config = &connpool.Config{Name: "test", Capacity: 2, AcquireTimeout: time.Second}
	}
	pool := connpool.NewPool[*dbconn.Conn](config)
	require.NoError(t, pool.Open(context.Background(), func(ctx context.Context) (*dbconn.Conn, error) {
		return dbconn.Connect(ctx, db)
	}))
	t.Cleanup(pool.Close)
	return NewClient(engine.NewEngine(pool, nil), nil)
}

// await submits an operation and blocks for its frame.
func await(t *testing.T, submit func(callback Callback)) *Frame {
	t.Helper()
	ch := make(chan *Frame, 1)
	submit(func(frame *Frame) {
		ch <- frame
	})
	select {
	case frame := <-ch:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("no callback within 5s")
		return nil
	}
}

func TestQueryFrame(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("UPDATE t SET x = 1", &fakesqldb.ExpectedResult{RowsAffected: 2})
	client := newTestClient(t, db, nil)

	frame := await(t, func(cb Callback) { client.Query("UPDATE t SET x = 1", cb) })
	require.False(t, frame.IsError(), frame.Message)
	assert.Equal(t, sqlerrors.OK, frame.Code)
	assert.EqualValues(t, 2, frame.RowsAffected)
	assert.Nil(t, frame.Schema)
	assert.Nil(t, frame.Rows)
	require.NoError(t, client.FreeResult(frame.Handle()))
}

func TestFetchAllFrame(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("SELECT id FROM t", &fakesqldb.ExpectedResult{
		Columns: []string{"id"},
		Kinds:   []string{"INT8"},
		Rows:    [][]any{{int64(1)}, {nil}},
	})
	client := newTestClient(t, db, nil)

	frame := await(t, func(cb Callback) { client.FetchAll("SELECT id FROM t", cb) })
	require.False(t, frame.IsError(), frame.Message)
	require.Len(t, frame.Schema, 1)
	assert.Equal(t, "INT8", frame.Schema[0].Kind)
	require.Len(t, frame.Rows, 2)
	assert.Equal(t, "1", frame.Rows[0].Values[0].String())
	assert.True(t, frame.Rows[1].Values[0].IsNull())

	// A row-set frame carries no error and no affected-row count.
	assert.Equal(t, sqlerrors.OK, frame.Code)
	assert.Empty(t, frame.Message)
	assert.Zero(t, frame.RowsAffected)
	require.NoError(t, client.FreeResult(frame.Handle()))
}

func TestErrorFrame(t *testing.T) {
	db := fakesqldb.New(t)
	client := newTestClient(t, db, nil)

	frame := await(t, func(cb Callback) { client.FetchAll("SELECT nope", cb) })
	require.True(t, frame.IsError())
	assert.Equal(t, sqlerrors.Database, frame.Code)
	assert.NotEmpty(t, frame.Message)

	// An error frame carries nothing else.
	assert.Nil(t, frame.Schema)
	assert.Nil(t, frame.Rows)
	assert.Zero(t, frame.RowsAffected)
	assert.Zero(t, frame.Tx)
	require.NoError(t, client.FreeResult(frame.Handle()))
}

func TestCallbackFiresExactlyOnce(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("SELECT 1", &fakesqldb.ExpectedResult{Columns: []string{"?column?"}, Rows: [][]any{{int64(1)}}})
	client := newTestClient(t, db, nil)

	const n = 50
	var calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		client.FetchAll("SELECT 1", func(frame *Frame) {
			calls.Add(1)
			_ = client.FreeResult(frame.Handle())
			wg.Done()
		})
	}
	wg.Wait()
	assert.EqualValues(t, n, calls.Load())
	assert.Equal(t, n, db.GetQueryCalledNum("SELECT 1"))
}

func TestFreeResultTwiceIsUsageError(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("SELECT 1", &fakesqldb.ExpectedResult{Columns: []string{"?column?"}, Rows: [][]any{{int64(1)}}})
	client := newTestClient(t, db, nil)

	frame := await(t, func(cb Callback) { client.FetchAll("SELECT 1", cb) })
	require.NoError(t, client.FreeResult(frame.Handle()))

	err := client.FreeResult(frame.Handle())
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))
	assert.Equal(t, 0, client.results.len(), "freed frames do not linger in the registry")
}

func TestFreeUnknownHandleIsUsageError(t *testing.T) {
	db := fakesqldb.New(t)
	client := newTestClient(t, db, nil)

	err := client.FreeResult(0xdeadbeef)
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))
}

func TestTransactionFlow(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("INSERT INTO t VALUES (1)", &fakesqldb.ExpectedResult{RowsAffected: 1})
	client := newTestClient(t, db, nil)

	idleBefore := client.PoolIdleSize()

	begin := await(t, client.TxBegin)
	require.False(t, begin.IsError(), begin.Message)
	require.NotZero(t, begin.Tx)
	txHandle := begin.Tx
	require.NoError(t, client.FreeResult(begin.Handle()))

	frame := await(t, func(cb Callback) {
		require.NoError(t, client.TxQuery(txHandle, "INSERT INTO t VALUES (1)", cb))
	})
	require.False(t, frame.IsError(), frame.Message)
	assert.EqualValues(t, 1, frame.RowsAffected)
	require.NoError(t, client.FreeResult(frame.Handle()))

	commit := await(t, func(cb Callback) {
		require.NoError(t, client.TxCommit(txHandle, cb))
	})
	require.False(t, commit.IsError(), commit.Message)
	require.NoError(t, client.FreeResult(commit.Handle()))

	assert.Equal(t, idleBefore+1, client.PoolIdleSize(), "idle size is restored after commit")

	// The handle was consumed by the commit.
	err := client.TxQuery(txHandle, "SELECT 1", func(*Frame) {})
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))
	err = client.TxRollback(txHandle, func(*Frame) {})
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))
	assert.Equal(t, 0, client.txs.len(), "the commit consumed the transaction entry")
}

func TestTxRollback(t *testing.T) {
	db := fakesqldb.New(t)
	client := newTestClient(t, db, nil)

	begin := await(t, client.TxBegin)
	require.False(t, begin.IsError(), begin.Message)
	require.NoError(t, client.FreeResult(begin.Handle()))

	rollback := await(t, func(cb Callback) {
		require.NoError(t, client.TxRollback(begin.Tx, cb))
	})
	require.False(t, rollback.IsError(), rollback.Message)
	require.NoError(t, client.FreeResult(rollback.Handle()))

	assert.Equal(t, 1, db.GetQueryCalledNum("rollback"))
	assert.Equal(t, 0, client.engine.Pool().InUse())
}

func TestStaleTxHandleIsSynchronousUsageError(t *testing.T) {
	db := fakesqldb.New(t)
	client := newTestClient(t, db, nil)

	var fired atomic.Bool
	err := client.TxQuery(12345, "SELECT 1", func(*Frame) { fired.Store(true) })
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load(), "the callback must not fire for misuse")
	assert.Equal(t, 0, db.GetQueryCalledNum("SELECT 1"))
}

func TestConnectionFlow(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("SELECT id FROM t", &fakesqldb.ExpectedResult{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(1)}},
	})
	db.AddQuery("INSERT INTO t VALUES (2)", &fakesqldb.ExpectedResult{RowsAffected: 1})
	client := newTestClient(t, db, nil)

	acquire := await(t, client.CnAcquire)
	require.False(t, acquire.IsError(), acquire.Message)
	require.NotZero(t, acquire.Cn)
	cn := acquire.Cn
	require.NoError(t, client.FreeResult(acquire.Handle()))
	assert.Equal(t, 1, client.engine.Pool().InUse())

	fetch := await(t, func(cb Callback) {
		require.NoError(t, client.CnFetchAll(cn, "SELECT id FROM t", cb))
	})
	require.False(t, fetch.IsError(), fetch.Message)
	assert.Len(t, fetch.Rows, 1)
	require.NoError(t, client.FreeResult(fetch.Handle()))

	query := await(t, func(cb Callback) {
		require.NoError(t, client.CnQuery(cn, "INSERT INTO t VALUES (2)", cb))
	})
	require.False(t, query.IsError(), query.Message)
	assert.EqualValues(t, 1, query.RowsAffected)
	require.NoError(t, client.FreeResult(query.Handle()))

	// A transaction anchored on the held connection.
	begin := await(t, func(cb Callback) {
		require.NoError(t, client.CnTxBegin(cn, cb))
	})
	require.False(t, begin.IsError(), begin.Message)
	require.NotZero(t, begin.Tx)
	require.NoError(t, client.FreeResult(begin.Handle()))

	commit := await(t, func(cb Callback) {
		require.NoError(t, client.TxCommit(begin.Tx, cb))
	})
	require.False(t, commit.IsError(), commit.Message)
	require.NoError(t, client.FreeResult(commit.Handle()))
	assert.Equal(t, 1, client.engine.Pool().InUse(), "commit does not release a borrowed connection")

	release := await(t, func(cb Callback) {
		require.NoError(t, client.CnRelease(cn, cb))
	})
	require.False(t, release.IsError(), release.Message)
	require.NoError(t, client.FreeResult(release.Handle()))
	assert.Equal(t, 0, client.engine.Pool().InUse())

	// The connection handle was consumed by the release.
	err := client.CnQuery(cn, "SELECT id FROM t", func(*Frame) {})
	require.Error(t, err)
	assert.True(t, sqlerrors.IsUsage(err))
	assert.Equal(t, 0, client.cns.len(), "the release consumed the connection entry")
}

func TestWorkerCrashedFrame(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddCrashQuery("SELECT crash")
	client := newTestClient(t, db, nil)

	frame := await(t, func(cb Callback) { client.FetchAll("SELECT crash", cb) })
	require.True(t, frame.IsError())
	assert.Equal(t, sqlerrors.WorkerCrashed, frame.Code)
	assert.Equal(t, "WorkerCrashed", frame.Message)
	require.NoError(t, client.FreeResult(frame.Handle()))

	assert.Equal(t, 0, client.engine.Pool().InUse(), "the crashed connection is not leaked")
}

func TestCloseReportsAndZeroesCounters(t *testing.T) {
	db := fakesqldb.New(t)
	db.AddQuery("SELECT 1", &fakesqldb.ExpectedResult{Columns: []string{"?column?"}, Rows: [][]any{{int64(1)}}})
	client := newTestClient(t, db, &connpool.Config{
		Name:           "test",
		MinConns:       2,
		Capacity:       4,
		AcquireTimeout: time.Second,
	})

	assert.Equal(t, 2, client.PoolSize())
	assert.Equal(t, 2, client.PoolIdleSize())

	closed := await(t, client.Close)
	require.False(t, closed.IsError(), closed.Message)
	require.NoError(t, client.FreeResult(closed.Handle()))

	assert.Equal(t, 0, client.PoolSize())
	assert.Equal(t, 0, client.PoolIdleSize())

	// Submissions after Close complete with POOL_CLOSED through the
	// callback, with the original message verbatim.
	frame := await(t, func(cb Callback) { client.FetchAll("SELECT 1", cb) })
	require.True(t, frame.IsError())
	assert.Equal(t, sqlerrors.PoolClosed, frame.Code)
	assert.Equal(t, "The connection pool is already closed", frame.Message)
	require.NoError(t, client.FreeResult(frame.Handle()))
}

func TestPoolTimedOutFrame(t *testing.T) {
	db := fakesqldb.New(t)
	client := newTestClient(t, db, &connpool.Config{
		Name:           "test",
		Capacity:       1,
		AcquireTimeout: 10 * time.Millisecond,
	})

	acquire := await(t, client.CnAcquire)
	require.False(t, acquire.IsError(), acquire.Message)
	require.NoError(t, client.FreeResult(acquire.Handle()))

	frame := await(t, func(cb Callback) { client.FetchAll("SELECT 1", cb) })
	require.True(t, frame.IsError())
	assert.Equal(t, sqlerrors.PoolTimedOut, frame.Code)
	assert.Equal(t, "PoolTimedOut", frame.Message)
	require.NoError(t, client.FreeResult(frame.Handle()))

	release := await(t, func(cb Callback) {
		require.NoError(t, client.CnRelease(acquire.Cn, cb))
	})
	require.NoError(t, client.FreeResult(release.Handle()))
}
