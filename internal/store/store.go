// Package store provides the Local Durable Store: persistent key-value
// storage organized into logical partitions for records, pending-sync
// markers, sync metadata and queued operations.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
)

// syncTimestampKey is the fixed key of the reconciliation watermark in the
// sync_metadata partition.
const syncTimestampKey = "last_sync_timestamp"

// Store provides partition-level operations over the durable database.
// Every method that touches device storage can fail with STORAGE_UNAVAILABLE;
// callers at the sync-engine layer catch and log those failures rather than
// propagating them as fatal.
type Store struct {
	db *DB
}

// New creates a Store over an opened database.
func New(db *DB) *Store {
	return &Store{db: db}
}

// =====================================================
// Records partition
// =====================================================

// PutRecord inserts or overwrites a record by id. No validation happens
// here; schema correctness is the caller's responsibility.
func (s *Store) PutRecord(rec *models.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode record", err)
	}

	query := `
	INSERT INTO records (id, lot_number, test_date, completed, updated_at, doc)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		lot_number = excluded.lot_number,
		test_date = excluded.test_date,
		completed = excluded.completed,
		updated_at = excluded.updated_at,
		doc = excluded.doc
	`
	_, err = s.db.Exec(query, rec.ID, rec.LotNumber, rec.Date, rec.Completed, rec.UpdatedAt, string(doc))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to put record", err)
	}
	return nil
}

// GetRecord returns the record with the given id, or nil when absent.
// Absence is not an error.
func (s *Store) GetRecord(id string) (*models.Record, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM records WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to get record", err)
	}

	var rec models.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to decode stored record", err)
	}
	return &rec, nil
}

// ListRecords returns all data records ordered by date descending. Entries
// with a reserved id prefix, an empty lot number or an unparseable date are
// internal bookkeeping and excluded.
func (s *Store) ListRecords() ([]*models.Record, error) {
	rows, err := s.db.Query(`SELECT doc FROM records ORDER BY test_date DESC, id`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list records", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan record", err)
		}

		var rec models.Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			logging.Warn("skipping undecodable entry in records partition", logging.Fields{"error": err.Error()})
			continue
		}
		if !rec.IsData() {
			continue
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate records", err)
	}
	return records, nil
}

// DeleteRecord removes a record. Idempotent: deleting an absent id is not
// an error.
func (s *Store) DeleteRecord(id string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to delete record", err)
	}
	return nil
}

// CountRecords counts data records (bookkeeping entries excluded).
func (s *Store) CountRecords() (int, error) {
	query := `
	SELECT COUNT(*) FROM records
	WHERE lot_number != '' AND test_date != '' AND substr(id, 1, 2) != '__'
	`
	var n int
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to count records", err)
	}
	return n, nil
}

// EvictOldest deletes the given number of oldest-by-date data records and
// returns their ids. Pending markers are deliberately not consulted here;
// the engine logs the data-loss risk when an evicted id still has one.
func (s *Store) EvictOldest(excess int) ([]string, error) {
	if excess <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT id FROM records
		WHERE lot_number != '' AND test_date != '' AND substr(id, 1, 2) != '__'
		ORDER BY test_date ASC, id
		LIMIT ?`, excess)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to select eviction candidates", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan eviction candidate", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate eviction candidates", err)
	}

	for _, id := range ids {
		if _, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to evict record", err)
		}
	}
	return ids, nil
}

// =====================================================
// Pending-sync partition
// =====================================================

// MarkPending records that the record's last remote write failed. Marking
// an already-marked id refreshes the timestamp.
func (s *Store) MarkPending(id string) error {
	query := `
	INSERT INTO pending_sync (record_id, marked_at) VALUES (?, ?)
	ON CONFLICT(record_id) DO UPDATE SET marked_at = excluded.marked_at
	`
	_, err := s.db.Exec(query, id, time.Now().UnixMilli())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to mark record pending", err)
	}
	return nil
}

// ClearPending removes a pending marker. Idempotent.
func (s *Store) ClearPending(id string) error {
	_, err := s.db.Exec(`DELETE FROM pending_sync WHERE record_id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to clear pending marker", err)
	}
	return nil
}

// IsPending reports whether the record id has a pending marker.
func (s *Store) IsPending(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_sync WHERE record_id = ?`, id).Scan(&n)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to check pending marker", err)
	}
	return n > 0, nil
}

// ListPendingMarkers returns all pending markers, oldest first.
func (s *Store) ListPendingMarkers() ([]models.PendingMarker, error) {
	rows, err := s.db.Query(`SELECT record_id, marked_at FROM pending_sync ORDER BY marked_at`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list pending markers", err)
	}
	defer rows.Close()

	var markers []models.PendingMarker
	for rows.Next() {
		var m models.PendingMarker
		if err := rows.Scan(&m.RecordID, &m.MarkedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan pending marker", err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate pending markers", err)
	}
	return markers, nil
}

// ListPendingRecords resolves pending markers to their full records. Markers
// whose record no longer exists locally are skipped.
func (s *Store) ListPendingRecords() ([]*models.Record, error) {
	markers, err := s.ListPendingMarkers()
	if err != nil {
		return nil, err
	}

	var records []*models.Record
	for _, m := range markers {
		rec, err := s.GetRecord(m.RecordID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountPending counts pending markers.
func (s *Store) CountPending() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_sync`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to count pending markers", err)
	}
	return n, nil
}

// =====================================================
// Sync metadata partition
// =====================================================

// GetSyncTimestamp returns the watermark of the last successful incremental
// reconciliation. ok is false when no reconciliation ever ran.
func (s *Store) GetSyncTimestamp() (ts int64, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, syncTimestampKey).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read sync timestamp", err)
	}
	return ts, true, nil
}

// SetSyncTimestamp writes the reconciliation watermark.
func (s *Store) SetSyncTimestamp(ts int64) error {
	query := `
	INSERT INTO sync_metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := s.db.Exec(query, syncTimestampKey, ts)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to write sync timestamp", err)
	}
	return nil
}

// =====================================================
// Pending-ops partition (generic queue storage)
// =====================================================

// EnqueueOp appends a pending operation.
func (s *Store) EnqueueOp(op *models.PendingOperation) error {
	_, err := s.db.Exec(
		`INSERT INTO pending_ops (id, kind, payload, retry_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		op.ID, string(op.Kind), string(op.Payload), op.RetryCount, op.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to enqueue operation", err)
	}
	return nil
}

// ListOps returns all queued operations, oldest first.
func (s *Store) ListOps() ([]*models.PendingOperation, error) {
	rows, err := s.db.Query(`SELECT id, kind, payload, retry_count, created_at FROM pending_ops ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list operations", err)
	}
	defer rows.Close()

	var ops []*models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var kind, payload string
		if err := rows.Scan(&op.ID, &kind, &payload, &op.RetryCount, &op.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan operation", err)
		}
		op.Kind = models.OpKind(kind)
		op.Payload = json.RawMessage(payload)
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate operations", err)
	}
	return ops, nil
}

// DeleteOp removes a queued operation. Idempotent.
func (s *Store) DeleteOp(id string) error {
	_, err := s.db.Exec(`DELETE FROM pending_ops WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to delete operation", err)
	}
	return nil
}

// IncrementOpRetry bumps an operation's retry counter and returns the new
// count.
func (s *Store) IncrementOpRetry(id string) (int, error) {
	_, err := s.db.Exec(`UPDATE pending_ops SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to increment retry count", err)
	}
	var n int
	err = s.db.QueryRow(`SELECT retry_count FROM pending_ops WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read retry count", err)
	}
	return n, nil
}

// CountOps counts queued operations.
func (s *Store) CountOps() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to count operations", err)
	}
	return n, nil
}
