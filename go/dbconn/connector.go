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

package dbconn

import (
	"context"
	"database/sql/driver"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

// Params describes how to reach the server. The URL scheme selects the
// driver; Username and Password, when set, override any credentials
// embedded in the URL.
type Params struct {
	// URL is the connection URL, e.g. "postgres://host:5432/db",
	// "pgx://host:5432/db" or "sqlite3:///path/to/file.db".
	URL string

	Username string
	Password string
}

// NewConnector resolves connect parameters to a driver.Connector.
// Supported schemes: postgres/postgresql (lib/pq), pgx (pgx through its
// database/sql adapter), sqlite3 (mattn/go-sqlite3). An unknown scheme is
// a usage error: it is rejected before any I/O.
func NewConnector(params Params) (driver.Connector, error) {
	scheme, rest, ok := strings.Cut(params.URL, "://")
	if !ok {
		return nil, sqlerrors.NewUsage("malformed connection URL %q: missing scheme", params.URL)
	}

	switch scheme {
	case "postgres", "postgresql":
		dsn, err := withCredentials(params.URL, params.Username, params.Password)
		if err != nil {
			return nil, err
		}
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, sqlerrors.Wrap(sqlerrors.Database, err)
		}
		return connector, nil

	case "pgx":
		// pgx shares the postgres URL format; only the scheme differs.
		dsn, err := withCredentials("postgres://"+rest, params.Username, params.Password)
		if err != nil {
			return nil, err
		}
		config, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, sqlerrors.Wrap(sqlerrors.Database, err)
		}
		return stdlib.GetConnector(*config), nil

	case "sqlite3", "sqlite":
		return dsnConnector{dsn: rest, driver: &sqlite3.SQLiteDriver{}}, nil

	default:
		return nil, sqlerrors.NewUsage("unsupported connection URL scheme %q", scheme)
	}
}

// withCredentials splices an explicit username/password into a URL,
// overriding any credentials already present.
func withCredentials(rawURL, username, password string) (string, error) {
	if username == "" && password == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", sqlerrors.NewUsage("malformed connection URL %q: %v", rawURL, err)
	}
	if password != "" {
		u.User = url.UserPassword(username, password)
	} else {
		u.User = url.User(username)
	}
	return u.String(), nil
}

// dsnConnector adapts a plain driver.Driver to the connector interface
// for drivers that do not provide one of their own.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}
