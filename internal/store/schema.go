// Package store provides database schema versioning for the durable store.
package store

import (
	"database/sql"
	"fmt"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
)

// schemaVersion is the current schema version, stored in PRAGMA user_version.
// Bumping it adds an entry to upgrades below; the upgrade runs exactly once
// per device on the next Open.
const schemaVersion = 2

// upgrades maps a target version to the statements that bring the schema up
// from the previous version. Version 1 is the initial schema; version 2
// added the generic pending_ops partition for non-save sync actions.
var upgrades = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			lot_number TEXT NOT NULL DEFAULT '',
			test_date TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			doc TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_date ON records(test_date);`,
		`CREATE INDEX IF NOT EXISTS idx_records_completed ON records(completed);`,
		`CREATE TABLE IF NOT EXISTS pending_sync (
			record_id TEXT PRIMARY KEY,
			marked_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_metadata (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS pending_ops (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_ops_created ON pending_ops(created_at);`,
	},
}

// migrate brings the schema from the stored user_version up to schemaVersion.
func (db *DB) migrate() error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	if current == schemaVersion {
		return nil
	}
	if current > schemaVersion {
		return apperrors.New(apperrors.ErrMigration,
			fmt.Sprintf("database schema version %d is newer than supported version %d", current, schemaVersion))
	}

	for v := current + 1; v <= schemaVersion; v++ {
		stmts, ok := upgrades[v]
		if !ok {
			return apperrors.New(apperrors.ErrMigration, fmt.Sprintf("missing upgrade for schema version %d", v))
		}
		if err := db.applyUpgrade(v, stmts); err != nil {
			return err
		}
		logging.Info("applied schema upgrade", logging.Fields{"version": v})
	}

	return nil
}

// applyUpgrade runs one version's statements and records the new version in
// a single transaction.
func (db *DB) applyUpgrade(version int, stmts []string) error {
	tx, err := db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to begin upgrade transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to apply schema upgrade to version %d", version), err)
		}
	}

	// PRAGMA user_version doesn't support placeholders
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to record schema version", err)
	}

	return tx.Commit()
}

// currentVersion returns the stored schema version, used by tests.
func currentVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}
