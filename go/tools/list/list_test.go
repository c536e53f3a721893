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

package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](l *List[T]) []T {
	var out []T
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}

func TestPushAndRemove(t *testing.T) {
	l := New[int]()
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Front())
	assert.Nil(t, l.Back())

	e1 := l.PushBack(1)
	e2 := l.PushBack(2)
	l.PushFront(0)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{0, 1, 2}, collect(l))

	l.Remove(e1)
	assert.Equal(t, []int{0, 2}, collect(l))

	l.Remove(e2)
	require.NotNil(t, l.Front())
	assert.Equal(t, 0, l.Front().Value)
	assert.Equal(t, l.Front(), l.Back())
}

func TestPushValueReusesElements(t *testing.T) {
	l := New[string]()

	// Caller-allocated elements, the way the waitlist feeds them from a
	// sync.Pool.
	e1 := &Element[string]{Value: "a"}
	e2 := &Element[string]{Value: "b"}
	l.PushBackValue(e1)
	l.PushFrontValue(e2)
	assert.Equal(t, []string{"b", "a"}, collect(l))

	l.Remove(e1)
	l.Remove(e2)
	assert.Equal(t, 0, l.Len())

	// A removed element can be pushed again.
	l.PushBackValue(e1)
	assert.Equal(t, []string{"a"}, collect(l))
}

func TestNextPrevTerminate(t *testing.T) {
	l := New[int]()
	l.PushBack(1)
	l.PushBack(2)

	front, back := l.Front(), l.Back()
	assert.Nil(t, front.Prev())
	assert.Nil(t, back.Next())
	assert.Equal(t, back, front.Next())
	assert.Equal(t, front, back.Prev())
}
