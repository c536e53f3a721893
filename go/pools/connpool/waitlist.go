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
	"runtime"
	"sync"

	"github.com/sqlbridge/sqlbridge/go/tools/list"
)

// waiter represents a client waiting for a connection in the waitlist.
type waiter[C Connection] struct {
	// conn is the channel that will receive the connection when another
	// holder returns one.
	conn chan *Pooled[C]
}

// waitlist queues clients that found the pool at capacity. Connections
// returned by other holders are handed directly to the waiter at the
// front, bypassing the free set, which keeps acquisition FIFO-fair.
type waitlist[C Connection] struct {
	nodes sync.Pool
	mu    sync.Mutex
	list  list.List[waiter[C]]
}

func (wl *waitlist[C]) init() {
	wl.nodes.New = func() any {
		return &list.Element[waiter[C]]{
			Value: waiter[C]{conn: make(chan *Pooled[C])},
		}
	}
	wl.list.Init()
}

// register queues the caller on the waitlist and returns its element.
// Registration is separate from blocking so the caller can look for a
// lease one more time after it is listed; a connection returned in that
// window is visible either on the free set or through the hand-off
// channel, never lost. The caller must follow with wait or abandon.
func (wl *waitlist[C]) register() *list.Element[waiter[C]] {
	elem := wl.nodes.Get().(*list.Element[waiter[C]])

	wl.mu.Lock()
	wl.list.PushBackValue(elem)
	wl.mu.Unlock()
	return elem
}

// wait blocks until another holder hands over a connection, the context
// expires, or the pool begins shutdown.
func (wl *waitlist[C]) wait(ctx context.Context, closeChan <-chan struct{}, elem *list.Element[waiter[C]]) (*Pooled[C], error) {
	defer wl.nodes.Put(elem)

	select {
	case <-closeChan:
		// Pool was closed while we were waiting.
		if wl.remove(elem) {
			return nil, ErrPoolClosed
		}
		// We lost the race with a goroutine that is handing us a
		// connection; take it so it is not leaked.
		return <-elem.Value.conn, nil

	case <-ctx.Done():
		if wl.remove(elem) {
			return nil, context.Cause(ctx)
		}
		return <-elem.Value.conn, nil

	case conn := <-elem.Value.conn:
		return conn, nil
	}
}

// abandon takes elem off the waitlist after the caller obtained a lease
// elsewhere. If a hand-off already picked the element, the handed-over
// connection is returned so the caller can put it back.
func (wl *waitlist[C]) abandon(elem *list.Element[waiter[C]]) *Pooled[C] {
	defer wl.nodes.Put(elem)

	if wl.remove(elem) {
		return nil
	}
	return <-elem.Value.conn
}

// remove takes elem off the waitlist. It returns false if the element is
// no longer listed, which means another goroutine already picked it as a
// hand-over target.
func (wl *waitlist[C]) remove(elem *list.Element[waiter[C]]) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	for e := wl.list.Front(); e != nil; e = e.Next() {
		if e == elem {
			wl.list.Remove(elem)
			return true
		}
	}
	return false
}

// tryReturnConn hands a connection to the waiter at the front of the
// list. It returns false if nobody is waiting.
func (wl *waitlist[C]) tryReturnConn(conn *Pooled[C]) bool {
	// fast path: if there's nobody waiting there's nothing to do
	if wl.list.Len() == 0 {
		return false
	}

	wl.mu.Lock()
	target := wl.list.Front()
	if target != nil {
		wl.list.Remove(target)
	}
	wl.mu.Unlock()

	// We may have raced with a waiter that gave up.
	if target == nil {
		return false
	}

	target.Value.conn <- conn
	runtime.Gosched()
	return true
}

// waiting returns the number of queued clients.
func (wl *waitlist[C]) waiting() int {
	return wl.list.Len()
}
