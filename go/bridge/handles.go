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
	"sync"
	"time"

	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

// handleTable maps opaque uint64 handles to live objects. Handles are
// allocated from a monotonic counter and never reused, so a freed or
// fabricated handle is always absent from the table and dereferencing it
// fails with a UsageError instead of touching another caller's object.
type handleTable[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]T
	kind    string
}

func newHandleTable[T any](kind string) *handleTable[T] {
	return &handleTable[T]{
		// Seeding with the clock keeps handles from looking like small
		// guessable integers across process restarts.
		next:    uint64(time.Now().UnixNano()),
		entries: make(map[uint64]T),
		kind:    kind,
	}
}

// put registers v and returns its handle.
func (h *handleTable[T]) put(v T) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.entries[id] = v
	return id
}

// get resolves a handle without invalidating it.
func (h *handleTable[T]) get(id uint64) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.entries[id]
	if !ok {
		var zero T
		return zero, sqlerrors.NewUsage("invalid %s handle %#x: unknown or already released", h.kind, id)
	}
	return v, nil
}

// take resolves a handle and invalidates it in the same step, so only one
// caller can ever own the object afterwards.
func (h *handleTable[T]) take(id uint64) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.entries[id]
	if !ok {
		var zero T
		return zero, sqlerrors.NewUsage("invalid %s handle %#x: unknown or already released", h.kind, id)
	}
	delete(h.entries, id)
	return v, nil
}

func (h *handleTable[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
