package store

import (
	"testing"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testRecord(id, lot, date string) *models.Record {
	return &models.Record{
		ID:        id,
		LotNumber: lot,
		Date:      date,
		UpdatedAt: 1000,
	}
}

func TestPutGetRecord(t *testing.T) {
	s := newTestStore(t)

	raw := 12.5
	rec := testRecord("rt-1", "0004690-25", "2025-01-15")
	rec.ResidualRaw = &raw

	if err := s.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() error: %v", err)
	}

	got, err := s.GetRecord("rt-1")
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetRecord() returned nil for stored record")
	}
	if got.LotNumber != "0004690-25" {
		t.Errorf("LotNumber = %q, want %q", got.LotNumber, "0004690-25")
	}
	if got.ResidualRaw == nil || *got.ResidualRaw != 12.5 {
		t.Errorf("ResidualRaw = %v, want 12.5", got.ResidualRaw)
	}
	if got.ResidualCooked != nil {
		t.Errorf("ResidualCooked = %v, want nil (never entered)", got.ResidualCooked)
	}
}

func TestGetRecordAbsent(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRecord("missing")
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetRecord() = %+v, want nil for absent id", got)
	}
}

func TestPutRecordOverwrites(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutRecord(testRecord("rt-1", "lot-a", "2025-01-15")); err != nil {
		t.Fatalf("PutRecord() error: %v", err)
	}
	if err := s.PutRecord(testRecord("rt-1", "lot-b", "2025-01-16")); err != nil {
		t.Fatalf("PutRecord() overwrite error: %v", err)
	}

	got, err := s.GetRecord("rt-1")
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got.LotNumber != "lot-b" {
		t.Errorf("LotNumber = %q, want overwrite to win", got.LotNumber)
	}

	n, err := s.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRecords() = %d, want 1", n)
	}
}

func TestListRecordsExcludesBookkeeping(t *testing.T) {
	s := newTestStore(t)

	records := []*models.Record{
		testRecord("rt-1", "lot-a", "2025-01-15"),
		testRecord("rt-2", "lot-b", "2025-01-20"),
		testRecord("__internal", "lot-x", "2025-01-01"), // reserved prefix
		testRecord("rt-3", "", "2025-01-10"),            // no lot number
		testRecord("rt-4", "lot-c", "not-a-date"),       // bad date
	}
	for _, rec := range records {
		if err := s.PutRecord(rec); err != nil {
			t.Fatalf("PutRecord(%s) error: %v", rec.ID, err)
		}
	}

	got, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRecords() returned %d records, want 2", len(got))
	}
	// newest first
	if got[0].ID != "rt-2" || got[1].ID != "rt-1" {
		t.Errorf("ListRecords() order = [%s, %s], want [rt-2, rt-1]", got[0].ID, got[1].ID)
	}

	n, err := s.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRecords() = %d, want 2", n)
	}
}

func TestDeleteRecordIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutRecord(testRecord("rt-1", "lot-a", "2025-01-15")); err != nil {
		t.Fatalf("PutRecord() error: %v", err)
	}
	if err := s.DeleteRecord("rt-1"); err != nil {
		t.Fatalf("DeleteRecord() error: %v", err)
	}
	if err := s.DeleteRecord("rt-1"); err != nil {
		t.Errorf("DeleteRecord() second call error: %v, want nil", err)
	}

	got, err := s.GetRecord("rt-1")
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got != nil {
		t.Error("record still present after delete")
	}
}

func TestEvictOldest(t *testing.T) {
	s := newTestStore(t)

	dates := map[string]string{
		"rt-1": "2025-01-10",
		"rt-2": "2025-01-20",
		"rt-3": "2025-01-05",
		"rt-4": "2025-01-15",
	}
	for id, date := range dates {
		if err := s.PutRecord(testRecord(id, "lot", date)); err != nil {
			t.Fatalf("PutRecord(%s) error: %v", id, err)
		}
	}
	// bookkeeping entry must never be an eviction candidate
	if err := s.PutRecord(testRecord("__meta", "lot", "2020-01-01")); err != nil {
		t.Fatalf("PutRecord(__meta) error: %v", err)
	}

	evicted, err := s.EvictOldest(2)
	if err != nil {
		t.Fatalf("EvictOldest() error: %v", err)
	}
	if len(evicted) != 2 {
		t.Fatalf("EvictOldest() removed %d, want 2", len(evicted))
	}
	if evicted[0] != "rt-3" || evicted[1] != "rt-1" {
		t.Errorf("EvictOldest() = %v, want oldest-by-date [rt-3, rt-1]", evicted)
	}

	n, err := s.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRecords() after eviction = %d, want 2", n)
	}
}

func TestEvictOldestNoExcess(t *testing.T) {
	s := newTestStore(t)

	evicted, err := s.EvictOldest(0)
	if err != nil {
		t.Fatalf("EvictOldest(0) error: %v", err)
	}
	if evicted != nil {
		t.Errorf("EvictOldest(0) = %v, want nil", evicted)
	}
}

func TestPendingMarkers(t *testing.T) {
	s := newTestStore(t)

	if err := s.MarkPending("rt-1"); err != nil {
		t.Fatalf("MarkPending() error: %v", err)
	}
	// re-marking refreshes, never duplicates
	if err := s.MarkPending("rt-1"); err != nil {
		t.Fatalf("MarkPending() second call error: %v", err)
	}
	if err := s.MarkPending("rt-2"); err != nil {
		t.Fatalf("MarkPending() error: %v", err)
	}

	n, err := s.CountPending()
	if err != nil {
		t.Fatalf("CountPending() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CountPending() = %d, want 2", n)
	}

	pending, err := s.IsPending("rt-1")
	if err != nil {
		t.Fatalf("IsPending() error: %v", err)
	}
	if !pending {
		t.Error("IsPending(rt-1) = false, want true")
	}

	if err := s.ClearPending("rt-1"); err != nil {
		t.Fatalf("ClearPending() error: %v", err)
	}
	pending, err = s.IsPending("rt-1")
	if err != nil {
		t.Fatalf("IsPending() error: %v", err)
	}
	if pending {
		t.Error("IsPending(rt-1) = true after clear, want false")
	}

	// idempotent
	if err := s.ClearPending("rt-1"); err != nil {
		t.Errorf("ClearPending() second call error: %v", err)
	}
}

func TestListPendingRecordsSkipsMissing(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutRecord(testRecord("rt-1", "lot-a", "2025-01-15")); err != nil {
		t.Fatalf("PutRecord() error: %v", err)
	}
	if err := s.MarkPending("rt-1"); err != nil {
		t.Fatalf("MarkPending() error: %v", err)
	}
	// marker for a record that no longer exists locally
	if err := s.MarkPending("rt-gone"); err != nil {
		t.Fatalf("MarkPending() error: %v", err)
	}

	records, err := s.ListPendingRecords()
	if err != nil {
		t.Fatalf("ListPendingRecords() error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "rt-1" {
		t.Errorf("ListPendingRecords() = %v, want just rt-1", records)
	}
}

func TestSyncTimestamp(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetSyncTimestamp()
	if err != nil {
		t.Fatalf("GetSyncTimestamp() error: %v", err)
	}
	if ok {
		t.Error("GetSyncTimestamp() ok = true before any reconciliation")
	}

	if err := s.SetSyncTimestamp(123456); err != nil {
		t.Fatalf("SetSyncTimestamp() error: %v", err)
	}

	ts, ok, err := s.GetSyncTimestamp()
	if err != nil {
		t.Fatalf("GetSyncTimestamp() error: %v", err)
	}
	if !ok || ts != 123456 {
		t.Errorf("GetSyncTimestamp() = (%d, %v), want (123456, true)", ts, ok)
	}

	// overwrite
	if err := s.SetSyncTimestamp(999999); err != nil {
		t.Fatalf("SetSyncTimestamp() error: %v", err)
	}
	ts, _, err = s.GetSyncTimestamp()
	if err != nil {
		t.Fatalf("GetSyncTimestamp() error: %v", err)
	}
	if ts != 999999 {
		t.Errorf("GetSyncTimestamp() = %d, want 999999", ts)
	}
}

func TestPendingOps(t *testing.T) {
	s := newTestStore(t)

	op1 := &models.PendingOperation{
		ID: "save-100-aaaa", Kind: models.OpSave,
		Payload: []byte(`{"id":"rt-1"}`), CreatedAt: 100,
	}
	op2 := &models.PendingOperation{
		ID: "delete-200-bbbb", Kind: models.OpDelete,
		Payload: []byte(`{"id":"rt-2"}`), CreatedAt: 200,
	}
	if err := s.EnqueueOp(op2); err != nil {
		t.Fatalf("EnqueueOp() error: %v", err)
	}
	if err := s.EnqueueOp(op1); err != nil {
		t.Fatalf("EnqueueOp() error: %v", err)
	}

	ops, err := s.ListOps()
	if err != nil {
		t.Fatalf("ListOps() error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ListOps() returned %d ops, want 2", len(ops))
	}
	// oldest first regardless of insertion order
	if ops[0].ID != "save-100-aaaa" {
		t.Errorf("ListOps()[0].ID = %q, want save-100-aaaa", ops[0].ID)
	}
	if ops[0].Kind != models.OpSave {
		t.Errorf("ListOps()[0].Kind = %q, want save", ops[0].Kind)
	}

	retries, err := s.IncrementOpRetry("save-100-aaaa")
	if err != nil {
		t.Fatalf("IncrementOpRetry() error: %v", err)
	}
	if retries != 1 {
		t.Errorf("IncrementOpRetry() = %d, want 1", retries)
	}

	if err := s.DeleteOp("save-100-aaaa"); err != nil {
		t.Fatalf("DeleteOp() error: %v", err)
	}
	n, err := s.CountOps()
	if err != nil {
		t.Fatalf("CountOps() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountOps() = %d, want 1", n)
	}
}

func TestSchemaVersionAfterMigrate(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	defer db.Close()

	v, err := currentVersion(db.DB)
	if err != nil {
		t.Fatalf("currentVersion() error: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("user_version = %d, want %d", v, schemaVersion)
	}
}
