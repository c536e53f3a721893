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

package sqltypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueNullIsDistinctFromEmpty(t *testing.T) {
	var null Value
	empty := MakeString("")

	assert.True(t, null.IsNull())
	assert.False(t, empty.IsNull())
	assert.Equal(t, "", null.String())
	assert.Equal(t, "", empty.String())
	assert.NotEqual(t, null == nil, empty == nil)
}

func TestEncode(t *testing.T) {
	now := time.Date(2025, 8, 30, 12, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name     string
		in       any
		declared string
		wantKind string
		wantVal  string
		wantNull bool
	}{
		{name: "nil is the null marker", in: nil, wantKind: KindText, wantNull: true},
		{name: "nil bytes stay null", in: []byte(nil), wantKind: KindBytes, wantNull: true},
		{name: "bool true", in: true, wantKind: KindBool, wantVal: "true"},
		{name: "bool false", in: false, wantKind: KindBool, wantVal: "false"},
		{name: "integer", in: int64(42), wantKind: KindInt, wantVal: "42"},
		{name: "negative integer", in: int64(-7), wantKind: KindInt, wantVal: "-7"},
		{name: "float", in: float64(1.5), wantKind: KindFloat, wantVal: "1.5"},
		{name: "string", in: "hello", wantKind: KindText, wantVal: "hello"},
		{name: "empty string is not null", in: "", wantKind: KindText, wantVal: ""},
		{name: "bytes", in: []byte{0x01, 0x02}, wantKind: KindBytes, wantVal: "\x01\x02"},
		{name: "timestamp", in: now, wantKind: KindTimestamp, wantVal: "2025-08-30T12:00:00.123456789Z"},
		{name: "declared kind wins", in: int64(42), declared: "NUMERIC", wantKind: "NUMERIC", wantVal: "42"},
		{name: "declared kind with null", in: nil, declared: "INT8", wantKind: "INT8", wantNull: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, val := Encode(tt.in, tt.declared)
			assert.Equal(t, tt.wantKind, kind)
			if tt.wantNull {
				assert.True(t, val.IsNull())
				return
			}
			require.False(t, val.IsNull())
			assert.Equal(t, tt.wantVal, val.String())
		})
	}
}

func TestEncodeCopiesDriverBytes(t *testing.T) {
	buf := []byte("abc")
	_, val := Encode(buf, "")
	buf[0] = 'x'
	assert.Equal(t, "abc", val.String())
}

func TestIntegerRoundTrip(t *testing.T) {
	kind, val := Encode(int64(42), "INT8")
	row := MakeRow([][]byte{val})
	field := &Field{Ordinal: 0, Name: "n", Kind: kind}

	require.Len(t, row.Values, 1)
	assert.Equal(t, int32(0), field.Ordinal)
	assert.Equal(t, "INT8", field.Kind)
	assert.Equal(t, "42", row.Values[0].String())
}

func TestMakeRowPreservesNulls(t *testing.T) {
	row := MakeRow([][]byte{nil, []byte(""), []byte("x")})
	require.Len(t, row.Values, 3)
	assert.True(t, row.Values[0].IsNull())
	assert.False(t, row.Values[1].IsNull())
	assert.False(t, row.Values[2].IsNull())
}

func TestResultIsRowSet(t *testing.T) {
	affected := &Result{RowsAffected: 3}
	assert.False(t, affected.IsRowSet())

	rowset := &Result{
		Fields: []*Field{{Ordinal: 0, Name: "id", Kind: KindInt}},
		Rows:   []*Row{MakeRow([][]byte{[]byte("1")})},
	}
	assert.True(t, rowset.IsRowSet())

	// A row set with a schema but no rows is still a row set.
	emptyRowset := &Result{Fields: []*Field{{Ordinal: 0, Name: "id", Kind: KindInt}}}
	assert.True(t, emptyRowset.IsRowSet())
}
