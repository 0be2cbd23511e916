// Package store provides the on-device durable store backing the sync core.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
)

// DB wraps sql.DB with the store's connection configuration.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database under dataDir. The database is opened with:
// - WAL mode for concurrent reads alongside the single writer
// - foreign key constraints enabled
// - a busy timeout so short write contention doesn't surface as errors
//
// The schema is versioned via PRAGMA user_version; bumping schemaVersion
// triggers the one-time upgrade path in schema.go on next open.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "resistencias.db")

	// modernc.org/sqlite: pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, fmt.Sprintf("failed to apply %s", p), err)
		}
	}

	wrapped := &DB{db}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return wrapped, nil
}

// OpenInMemory opens an in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to open in-memory database", err)
	}
	db.SetMaxOpenConns(1)

	wrapped := &DB{db}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
