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

// Package connpool provides a bounded connection pool with acquire
// timeouts, a fair waitlist, and lazy idle/lifetime eviction. Eviction is
// checked at acquire and release time rather than by a background sweeper;
// that keeps the pool free of extra scheduling machinery for a property
// that is acceptable to check lazily.
package connpool

// Connection represents a physical database connection managed by the
// pool. A connection is used by at most one holder at a time; the pool
// never calls into it while it is leased out.
type Connection interface {
	// Close tears down the connection and releases its resources.
	Close()

	// IsClosed reports whether the connection has been torn down.
	IsClosed() bool
}
