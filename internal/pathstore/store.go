// Package pathstore persists generated price paths in SQLite so the same
// paths can be replayed across many simulation runs.
package pathstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"mmsim/internal/brownian"

	_ "modernc.org/sqlite"
)

var (
	// ErrPathNotFound is returned when no path has the requested ID
	ErrPathNotFound      = errors.New("path not found")
	// ErrUnsupportedSchema is returned for records written with another schema version
	ErrUnsupportedSchema = errors.New("unsupported path schema version")
	// ErrCorruptPath is returned when a record disagrees with its own columns
	ErrCorruptPath       = errors.New("stored path is inconsistent")
)

// Store provides SQLite persistence for price paths
type Store struct {
	db *sql.DB
}

// StoredPath is a persisted path with its bookkeeping columns
type StoredPath struct {
	ID        string
	Seq       int64
	Batch     string
	CreatedAt time.Time
	Path      *brownian.Path
}

// pragmas are applied to every pooled connection through the DSN
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Open opens (or creates) the database at dsn and applies pending migrations.
// ":memory:" gives a private in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection queues writers in the pool
	// instead of failing them with SQLITE_BUSY. It also keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// withPragmas turns a file path into a modernc DSN carrying pragmas
func withPragmas(dsn string) string {
	if dsn == ":memory:" {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}
	return dsn
}

// Pragma returns the value of a connection pragma, e.g. "busy_timeout"
func (s *Store) Pragma(ctx context.Context, name string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v)
	return v, err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
