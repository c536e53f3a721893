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
	"sync/atomic"
	"time"
)

// Pooled wraps a Connection handed out by the pool. It is the lease: the
// holder has exclusive use of Conn until it calls Recycle, which must
// happen exactly once per acquisition.
type Pooled[C Connection] struct {
	// Conn is the underlying connection. Only valid between acquisition
	// and Recycle.
	Conn C

	pool        *Pool[C]
	timeCreated time.Time
	timeUsed    atomic.Int64 // unix nanoseconds
	tainted     atomic.Bool
	recycled    atomic.Bool
}

func newPooled[C Connection](conn C, pool *Pool[C]) *Pooled[C] {
	now := time.Now()
	p := &Pooled[C]{Conn: conn, pool: pool, timeCreated: now}
	p.timeUsed.Store(now.UnixNano())
	return p
}

// Recycle returns the connection to the pool. Extra calls are ignored so
// an error path that already released the lease cannot corrupt the free
// set, but relying on that is a bug in the caller.
func (p *Pooled[C]) Recycle() {
	if p.recycled.Swap(true) {
		return
	}
	p.pool.put(p)
}

// Taint marks the connection as unfit for reuse. A tainted connection is
// closed on Recycle instead of returning to the free set; the pool
// replaces it lazily on a later acquire.
func (p *Pooled[C]) Taint() {
	p.tainted.Store(true)
}

// IsTainted reports whether the connection was marked unfit for reuse.
func (p *Pooled[C]) IsTainted() bool {
	return p.tainted.Load()
}

// Close tears down the underlying connection. The lease must still be
// recycled afterwards so the pool can account for the freed slot.
func (p *Pooled[C]) Close() {
	if !p.Conn.IsClosed() {
		p.Conn.Close()
	}
}

// Age returns the duration since the connection was created.
func (p *Pooled[C]) Age(now time.Time) time.Duration {
	return now.Sub(p.timeCreated)
}

// IdleTime returns the duration since the connection was last used.
func (p *Pooled[C]) IdleTime(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, p.timeUsed.Load()))
}

// expired reports whether the connection has outlived maxLifetime.
// Zero means connections never expire by age.
func (p *Pooled[C]) expired(maxLifetime time.Duration, now time.Time) bool {
	return maxLifetime > 0 && p.Age(now) >= maxLifetime
}

// idleExpired reports whether the connection has sat idle longer than
// idleTimeout. Zero means idle connections are kept indefinitely.
func (p *Pooled[C]) idleExpired(idleTimeout time.Duration, now time.Time) bool {
	return idleTimeout > 0 && p.IdleTime(now) >= idleTimeout
}

// handout resets the lease bookkeeping when the pool gives the connection
// to a new holder.
func (p *Pooled[C]) handout() {
	p.recycled.Store(false)
	p.timeUsed.Store(time.Now().UnixNano())
}

// markIdle records the moment the connection went back to the free set.
func (p *Pooled[C]) markIdle() {
	p.timeUsed.Store(time.Now().UnixNano())
}
