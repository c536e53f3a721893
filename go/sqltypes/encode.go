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
	"fmt"
	"strconv"
	"time"
)

// Declared kinds. Every value that crosses the boundary carries one of
// these tags so the caller can decode the textual form without access to
// the server's type catalog. Drivers that report their own type names
// (e.g. "INT8", "VARCHAR") pass them through unchanged; these constants
// cover the fallback path where only the Go value is available.
const (
	KindBool      = "BOOL"
	KindInt       = "INT8"
	KindFloat     = "FLOAT8"
	KindText      = "TEXT"
	KindBytes     = "BYTEA"
	KindTimestamp = "TIMESTAMP"
)

// Encode converts a driver-native value into its declared kind and textual
// representation. A nil input encodes as (kind, nil): the NULL marker is
// the nil Value itself, never an empty string. When the driver supplied a
// declared kind for the column it takes precedence over the inferred one.
func Encode(v any, declaredKind string) (string, Value) {
	kind, val := encodeNative(v)
	if declaredKind != "" {
		kind = declaredKind
	}
	return kind, val
}

func encodeNative(v any) (string, Value) {
	switch t := v.(type) {
	case nil:
		return KindText, nil
	case bool:
		if t {
			return KindBool, Value("true")
		}
		return KindBool, Value("false")
	case int64:
		return KindInt, Value(strconv.FormatInt(t, 10))
	case float64:
		return KindFloat, Value(strconv.FormatFloat(t, 'g', -1, 64))
	case []byte:
		if t == nil {
			return KindBytes, nil
		}
		// Copy: the driver may reuse the buffer on the next row.
		return KindBytes, Value(append([]byte(nil), t...))
	case string:
		return KindText, MakeString(t)
	case time.Time:
		return KindTimestamp, Value(t.Format(time.RFC3339Nano))
	default:
		return KindText, MakeString(fmt.Sprint(t))
	}
}
