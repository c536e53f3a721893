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

// Package sqltypes provides the internal types for query results. The types
// preserve the NULL vs empty string distinction end to end: a nil Value is
// NULL, a zero-length Value is the empty string. Nothing in this package or
// its consumers is allowed to collapse the two.
package sqltypes

// Value represents a nullable column value in its textual form.
// nil means NULL, []byte{} means empty string.
type Value []byte

// IsNull returns true if the value is NULL.
func (v Value) IsNull() bool {
	return v == nil
}

// String returns the textual form of the value. Calling String on a NULL
// value returns ""; use IsNull first when the distinction matters.
func (v Value) String() string {
	return string(v)
}

// MakeString returns a non-NULL Value holding s. An empty s yields an empty
// Value, not NULL.
func MakeString(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value(s)
}

// Field describes one column of a row set: its position, name and declared
// kind. The kind is a type tag that lets a caller with no knowledge of the
// server's type system decode the textual value generically.
type Field struct {
	Ordinal int32
	Name    string
	Kind    string
}

// Row represents a row with nullable column values, in field order.
type Row struct {
	// Values contains the column values. A nil entry means NULL.
	Values []Value
}

// Result represents the materialized outcome of one statement.
type Result struct {
	// Fields describes the columns of the row set. It is populated at
	// most once per fetch; an execute-style statement leaves it nil.
	Fields []*Field

	// RowsAffected is the number of rows affected (INSERT, UPDATE,
	// DELETE, ...). Zero for row-returning statements.
	RowsAffected uint64

	// Rows contains the data rows.
	Rows []*Row
}

// IsRowSet reports whether the result carries a row set rather than an
// affected-row count.
func (r *Result) IsRowSet() bool {
	return r.Fields != nil
}

// MakeRow creates a Row from a slice of byte slices. nil entries represent
// NULL values.
func MakeRow(values [][]byte) *Row {
	row := &Row{Values: make([]Value, len(values))}
	for i, v := range values {
		if v == nil {
			row.Values[i] = nil
		} else {
			row.Values[i] = Value(v)
		}
	}
	return row
}
