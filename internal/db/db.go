// Package db opens the opsdesk SQLite database and keeps its schema current.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database, used by tests and dry runs.
const Memory = ":memory:"

// BusyTimeout is how long a connection waits on a locked database, in ms.
const BusyTimeout = 5000

// ErrNoPath is returned by Open when no database path is given.
var ErrNoPath = errors.New("database path required")

// DB wraps the SQLite connection pool.
type DB struct {
	sql *sql.DB
}

// Open opens or creates the database at path and migrates it. The path is
// used as given; callers expand ~ through the config package. Pragmas ride
// on the DSN and apply to every pooled connection.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	memory := path == Memory
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn(path, memory))
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	if memory {
		// A second connection would see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db %s: %w", path, err)
	}
	if err := Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{sql: sqlDB}, nil
}

// dsn appends the connection pragmas in the modernc _pragma form.
func dsn(path string, memory bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeout))
	q.Add("_pragma", "foreign_keys(1)")
	if !memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return path + "?" + q.Encode()
}

// Close closes the pool. It is safe on a nil DB.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SQL returns the underlying pool for the store.
func (d *DB) SQL() *sql.DB {
	if d == nil {
		return nil
	}
	return d.sql
}
