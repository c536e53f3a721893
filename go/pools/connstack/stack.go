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

// Package connstack provides the LIFO stack that backs a connection pool's
// free set. LIFO keeps recently used connections hot, so idle-timeout
// eviction naturally drains the cold end of the pool.
package connstack

import "sync"

// Stack is a LIFO stack safe for concurrent use. The lock is held only for
// pointer moves, never across I/O.
type Stack[T any] struct {
	mu    sync.Mutex
	elems []T
}

// Push adds an element to the top of the stack.
func (s *Stack[T]) Push(elem T) {
	s.mu.Lock()
	s.elems = append(s.elems, elem)
	s.mu.Unlock()
}

// Pop removes and returns the top element. The second return value is
// false if the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.elems) == 0 {
		var zero T
		return zero, false
	}
	top := s.elems[len(s.elems)-1]
	var zero T
	s.elems[len(s.elems)-1] = zero
	s.elems = s.elems[:len(s.elems)-1]
	return top, true
}

// Len returns the number of elements in the stack.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elems)
}

// ForEach visits every element from the top of the stack down, stopping
// early if fn returns false.
func (s *Stack[T]) ForEach(fn func(T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.elems) - 1; i >= 0; i-- {
		if !fn(s.elems[i]) {
			return
		}
	}
}
