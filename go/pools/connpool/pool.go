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

package connpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sqlbridge/sqlbridge/go/pools/connstack"
	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

var (
	// ErrPoolClosed is returned by Get once the pool has begun shutdown.
	ErrPoolClosed = sqlerrors.New(sqlerrors.PoolClosed, "The connection pool is already closed")

	// ErrTimeout is returned by Get when no lease became available within
	// the acquire timeout.
	ErrTimeout = sqlerrors.New(sqlerrors.PoolTimedOut, "PoolTimedOut")
)

// Config holds configuration for the connection pool.
type Config struct {
	// Name identifies the pool in logs and metrics.
	Name string

	// MinConns is the number of connections dialed eagerly at Open.
	MinConns int

	// Capacity is the maximum number of connections, in use plus idle.
	Capacity int

	// AcquireTimeout bounds how long Get waits for a lease once the pool
	// is at capacity. Zero means fail immediately when nothing is free.
	AcquireTimeout time.Duration

	// IdleTimeout is how long a connection can sit in the free set
	// before being closed. Zero disables idle eviction.
	IdleTimeout time.Duration

	// MaxLifetime is the maximum age of a connection. Zero disables age
	// eviction.
	MaxLifetime time.Duration

	// Logger for pool lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// ConnectionCount is the optional OTel instrument for connection
	// counts by state. The zero value disables metrics.
	ConnectionCount ConnectionCount
}

// Pool manages a bounded set of live connections. It hands out leases
// (Pooled wrappers), enforces the acquire timeout, evicts idle and aged
// connections lazily at acquire/release time, and closes everything at
// shutdown. The free and in-use sets are guarded by a single mutex held
// only for pointer moves, never across a dial or a network round trip.
type Pool[C Connection] struct {
	config  *Config
	logger  *slog.Logger
	factory func(context.Context) (C, error)

	mu       sync.Mutex
	cond     *sync.Cond // signaled when borrowed drops during shutdown
	idle     connstack.Stack[*Pooled[C]]
	active   int64 // open connections: idle + borrowed
	borrowed int64 // leases currently held
	closed   bool
	closeCh  chan struct{}

	wait waitlist[C]

	// Cumulative counters.
	getCount       atomic.Int64
	waitCount      atomic.Int64
	waitTime       atomic.Int64 // nanoseconds
	connectCount   atomic.Int64
	idleClosed     atomic.Int64
	lifetimeClosed atomic.Int64
}

// NewPool creates a pool with the given configuration. Call Open before
// the first Get.
func NewPool[C Connection](config *Config) *Pool[C] {
	if config.Capacity <= 0 {
		config.Capacity = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool[C]{
		config:  config,
		logger:  logger,
		closeCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wait.init()
	return p
}

// Open installs the connection factory and dials MinConns connections
// eagerly. A dial failure closes whatever was opened and is returned
// as-is, so an unreachable server or bad credentials surface to the
// caller with the driver's own message.
func (p *Pool[C]) Open(ctx context.Context, factory func(context.Context) (C, error)) error {
	p.factory = factory

	for i := 0; i < p.config.MinConns; i++ {
		conn, err := factory(ctx)
		if err != nil {
			p.Close()
			return err
		}
		p.connectCount.Add(1)
		pooled := newPooled(conn, p)
		pooled.recycled.Store(true)

		p.mu.Lock()
		p.active++
		p.idle.Push(pooled)
		p.mu.Unlock()
		p.config.ConnectionCount.Add(ctx, 1, p.config.Name, stateIdle)
	}

	p.logger.Debug("connection pool opened",
		"pool", p.config.Name,
		"min_conns", p.config.MinConns,
		"capacity", p.config.Capacity)
	return nil
}

// Get acquires a lease. It prefers an idle connection, dials a new one
// when under capacity, and otherwise joins the waitlist until a lease is
// returned, the acquire timeout elapses (ErrTimeout), or the pool closes
// (ErrPoolClosed).
func (p *Pool[C]) Get(ctx context.Context) (*Pooled[C], error) {
	p.getCount.Add(1)
	start := time.Now()

	pooled, mustWait, err := p.tryGet(ctx)
	if err != nil {
		return nil, err
	}
	if pooled != nil {
		return pooled, nil
	}
	if !mustWait {
		// Under capacity: dial a fresh connection. The slot was
		// reserved inside tryGet so the capacity invariant holds
		// while we dial without the lock.
		return p.connect(ctx)
	}

	if p.config.AcquireTimeout == 0 {
		return nil, ErrTimeout
	}

	elem := p.wait.register()

	// A lease recycled between the capacity check above and the
	// registration went to the free set without seeing us; look again
	// now that returning holders can find us on the waitlist.
	pooled, mustWait, err = p.tryGet(ctx)
	if err == nil && pooled == nil && !mustWait {
		pooled, err = p.connect(ctx)
	}
	if err != nil || pooled != nil {
		if extra := p.wait.abandon(elem); extra != nil {
			// A hand-off raced with the recheck and gave us a second
			// connection. Return it so the next waiter gets it.
			extra.handout()
			extra.Recycle()
		}
		return pooled, err
	}

	p.waitCount.Add(1)
	waitCtx, cancel := context.WithDeadlineCause(ctx, start.Add(p.config.AcquireTimeout), ErrTimeout)
	pooled, err = p.wait.wait(waitCtx, p.closeCh, elem)
	cancel()
	p.waitTime.Add(int64(time.Since(start)))
	if err != nil {
		return nil, err
	}
	pooled.handout()
	return pooled, nil
}

// tryGet attempts to satisfy an acquisition without blocking. It returns
// a lease, or (nil, false, nil) when the caller should dial (the capacity
// slot is already reserved), or (nil, true, nil) when the pool is at
// capacity and the caller must wait.
func (p *Pool[C]) tryGet(ctx context.Context) (*Pooled[C], bool, error) {
	var evicted []*Pooled[C]
	var evictedLifetime int64

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolClosed
	}

	now := time.Now()
	var found *Pooled[C]
	for {
		pooled, ok := p.idle.Pop()
		if !ok {
			break
		}
		if pooled.Conn.IsClosed() || pooled.expired(p.config.MaxLifetime, now) || pooled.idleExpired(p.config.IdleTimeout, now) {
			if pooled.expired(p.config.MaxLifetime, now) {
				evictedLifetime++
			}
			p.active--
			evicted = append(evicted, pooled)
			continue
		}
		found = pooled
		break
	}

	mustWait := false
	if found != nil {
		p.borrowed++
	} else if p.active < int64(p.config.Capacity) {
		// Reserve the slot for the dial that follows.
		p.active++
		p.borrowed++
	} else {
		mustWait = true
	}
	p.mu.Unlock()

	for _, pooled := range evicted {
		pooled.Close()
		p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateIdle)
	}
	p.lifetimeClosed.Add(evictedLifetime)
	p.idleClosed.Add(int64(len(evicted)) - evictedLifetime)

	if found != nil {
		found.handout()
		p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateIdle)
		p.config.ConnectionCount.Add(ctx, 1, p.config.Name, stateUsed)
		return found, false, nil
	}
	return nil, mustWait, nil
}

// connect dials a new connection for a slot already reserved in tryGet.
func (p *Pool[C]) connect(ctx context.Context) (*Pooled[C], error) {
	conn, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.active--
		p.borrowed--
		p.cond.Broadcast()
		p.mu.Unlock()
		p.replenish()
		return nil, err
	}
	p.connectCount.Add(1)
	p.config.ConnectionCount.Add(ctx, 1, p.config.Name, stateUsed)
	return newPooled(conn, p), nil
}

// replenish dials a replacement when a capacity slot frees up while
// clients are queued. Without it a discard at release would leave the
// front waiter stuck until its acquire timeout even though the pool has
// headroom. The slot is reserved before dialing so a concurrent Get
// cannot claim it twice; a failed dial releases the slot and the waiter
// falls back to its timeout.
func (p *Pool[C]) replenish() {
	p.mu.Lock()
	if p.closed || p.wait.waiting() == 0 || p.active >= int64(p.config.Capacity) {
		p.mu.Unlock()
		return
	}
	p.active++
	p.borrowed++
	p.mu.Unlock()

	go func() {
		ctx := context.Background()
		conn, err := p.factory(ctx)
		if err != nil {
			p.logger.Warn("replacement dial failed",
				"pool", p.config.Name,
				"error", err)
			p.mu.Lock()
			p.active--
			p.borrowed--
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		p.connectCount.Add(1)
		p.config.ConnectionCount.Add(ctx, 1, p.config.Name, stateUsed)
		p.put(newPooled(conn, p))
	}()
}

// put is called by Pooled.Recycle to return a lease. Tainted, closed or
// aged-out connections are closed here and replaced lazily on a later
// acquire; healthy ones go to a waiter if any, else back to the free set.
func (p *Pool[C]) put(pooled *Pooled[C]) {
	ctx := context.Background()

	p.mu.Lock()
	now := time.Now()
	discard := p.closed || pooled.IsTainted() || pooled.Conn.IsClosed() || pooled.expired(p.config.MaxLifetime, now)
	if discard {
		p.active--
		p.borrowed--
		p.cond.Broadcast()
		p.mu.Unlock()

		if pooled.expired(p.config.MaxLifetime, now) {
			p.lifetimeClosed.Add(1)
		}
		pooled.Close()
		p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateUsed)
		p.replenish()
		return
	}
	p.mu.Unlock()

	// Hand the connection straight to a waiter when one is queued. The
	// lease stays borrowed: the waiter becomes its new holder.
	if p.wait.tryReturnConn(pooled) {
		return
	}

	p.mu.Lock()
	if p.closed {
		// Lost a race with Close.
		p.active--
		p.borrowed--
		p.cond.Broadcast()
		p.mu.Unlock()
		pooled.Close()
		p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateUsed)
		return
	}
	p.borrowed--
	pooled.markIdle()
	p.idle.Push(pooled)
	p.mu.Unlock()

	p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateUsed)
	p.config.ConnectionCount.Add(ctx, 1, p.config.Name, stateIdle)
}

// Close stops accepting acquisitions, waits for in-flight leases to be
// recycled, and closes every connection. It is idempotent.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.closeCh)

	var toClose []*Pooled[C]
	for {
		pooled, ok := p.idle.Pop()
		if !ok {
			break
		}
		p.active--
		toClose = append(toClose, pooled)
	}

	for p.borrowed > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()

	ctx := context.Background()
	for _, pooled := range toClose {
		pooled.Close()
		p.config.ConnectionCount.Add(ctx, -1, p.config.Name, stateIdle)
	}

	p.logger.Info("connection pool closed", "pool", p.config.Name)
}

// IsClosed reports whether the pool has begun shutdown.
func (p *Pool[C]) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Name returns the pool's configured name.
func (p *Pool[C]) Name() string {
	return p.config.Name
}

// Capacity returns the configured maximum number of connections.
func (p *Pool[C]) Capacity() int {
	return p.config.Capacity
}

// Size returns the number of open connections, in use plus idle. After
// Close it reports 0.
func (p *Pool[C]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.active)
}

// IdleSize returns the number of connections in the free set. After
// Close it reports 0.
func (p *Pool[C]) IdleSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.active - p.borrowed)
}

// InUse returns the number of leases currently held.
func (p *Pool[C]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.borrowed)
}

// PoolStats contains a snapshot of pool counters.
type PoolStats struct {
	// Open is the number of open connections, in use plus idle.
	Open int64

	// InUse is the number of leases currently held.
	InUse int64

	// Idle is the number of connections in the free set.
	Idle int64

	// Waiting is the number of queued acquisitions.
	Waiting int64

	// GetCount is the total number of acquisitions attempted.
	GetCount int64

	// WaitCount is the number of acquisitions that had to queue.
	WaitCount int64

	// WaitTime is the cumulative time spent queued.
	WaitTime time.Duration

	// ConnectCount is the total number of connections dialed.
	ConnectCount int64

	// IdleClosed counts connections evicted for sitting idle too long.
	IdleClosed int64

	// LifetimeClosed counts connections evicted for exceeding the
	// maximum lifetime.
	LifetimeClosed int64
}

// Stats returns a snapshot of the pool counters. It remains callable
// after Close, at which point the gauges report zero.
func (p *Pool[C]) Stats() PoolStats {
	p.mu.Lock()
	open := p.active
	inUse := p.borrowed
	p.mu.Unlock()

	return PoolStats{
		Open:           open,
		InUse:          inUse,
		Idle:           open - inUse,
		Waiting:        int64(p.wait.waiting()),
		GetCount:       p.getCount.Load(),
		WaitCount:      p.waitCount.Load(),
		WaitTime:       time.Duration(p.waitTime.Load()),
		ConnectCount:   p.connectCount.Load(),
		IdleClosed:     p.idleClosed.Load(),
		LifetimeClosed: p.lifetimeClosed.Load(),
	}
}
