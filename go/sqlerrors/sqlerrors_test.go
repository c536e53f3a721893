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

package sqlerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{OK, "OK"},
		{Database, "DATABASE"},
		{PoolTimedOut, "POOL_TIMED_OUT"},
		{PoolClosed, "POOL_CLOSED"},
		{WorkerCrashed, "WORKER_CRASHED"},
		{Code(42), "CODE(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.String())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil is OK", nil, OK},
		{"tagged error", New(PoolTimedOut, "PoolTimedOut"), PoolTimedOut},
		{"wrapped tagged error", fmt.Errorf("outer: %w", New(WorkerCrashed, "WorkerCrashed")), WorkerCrashed},
		{"untagged error defaults to DATABASE", errors.New("boom"), Database},
		{"usage error maps to DATABASE", NewUsage("bad handle"), Database},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestMessageCarriedVerbatim(t *testing.T) {
	cause := errors.New(`ERROR: relation "missing" does not exist`)
	err := Wrap(Database, cause)
	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsUsage(t *testing.T) {
	err := NewUsage("transaction is %s; no further operations are allowed", "committed")
	require.True(t, IsUsage(err))
	assert.Equal(t, "transaction is committed; no further operations are allowed", err.Error())

	assert.False(t, IsUsage(New(Database, "boom")))
	assert.False(t, IsUsage(nil))
}
