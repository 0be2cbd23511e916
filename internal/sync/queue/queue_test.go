package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(store.New(db))
}

func TestEnqueue(t *testing.T) {
	q := newTestQueue(t)

	op, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-1"})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if op.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", op.RetryCount)
	}
	if op.Kind != models.OpSave {
		t.Errorf("Kind = %q, want save", op.Kind)
	}
	if op.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestEnqueueUniqueIDs(t *testing.T) {
	q := newTestQueue(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		op, err := q.Enqueue(models.OpDelete, map[string]string{"id": "rt-1"})
		if err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if seen[op.ID] {
			t.Fatalf("duplicate operation id %q", op.ID)
		}
		seen[op.ID] = true
	}
}

func TestDrainSuccessRemovesOps(t *testing.T) {
	q := newTestQueue(t)

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-1"}); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
	}

	result, err := q.Drain(context.Background(), func(ctx context.Context, op *models.PendingOperation) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if result.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", result.Succeeded)
	}

	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d after successful drain, want 0", n)
	}
}

func TestDrainFailureIncrementsRetry(t *testing.T) {
	q := newTestQueue(t)

	if _, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-1"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	result, err := q.Drain(context.Background(), func(ctx context.Context, op *models.PendingOperation) error {
		return errors.New("remote down")
	})
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if result.Retained != 1 {
		t.Errorf("Retained = %d, want 1", result.Retained)
	}

	ops, err := q.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("List() returned %d ops, want 1 retained", len(ops))
	}
	if ops[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d after one failure, want 1", ops[0].RetryCount)
	}
}

func TestDrainDiscardsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t)

	if _, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-1"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	failing := func(ctx context.Context, op *models.PendingOperation) error {
		return errors.New("remote down")
	}

	for i := 1; i < models.MaxRetries; i++ {
		result, err := q.Drain(context.Background(), failing)
		if err != nil {
			t.Fatalf("Drain() pass %d error: %v", i, err)
		}
		if result.Retained != 1 {
			t.Fatalf("pass %d: Retained = %d, want operation kept below the cap", i, result.Retained)
		}
	}

	// the pass that reaches the cap discards permanently
	result, err := q.Drain(context.Background(), failing)
	if err != nil {
		t.Fatalf("Drain() final pass error: %v", err)
	}
	if result.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", result.Discarded)
	}

	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d after discard, want 0", n)
	}
}

func TestDrainOpsAreIndependent(t *testing.T) {
	q := newTestQueue(t)

	if _, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-bad"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if _, err := q.Enqueue(models.OpSave, map[string]string{"id": "rt-good"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	var mu sync.Mutex
	executed := 0
	result, err := q.Drain(context.Background(), func(ctx context.Context, op *models.PendingOperation) error {
		mu.Lock()
		executed++
		mu.Unlock()
		if string(op.Payload) == `{"id":"rt-bad"}` {
			return errors.New("rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}

	// one failure never blocks the other operation
	if executed != 2 {
		t.Errorf("executed = %d, want both ops attempted", executed)
	}
	if result.Succeeded != 1 || result.Retained != 1 {
		t.Errorf("result = %+v, want 1 succeeded and 1 retained", result)
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	q := newTestQueue(t)

	result, err := q.Drain(context.Background(), func(ctx context.Context, op *models.PendingOperation) error {
		t.Error("executor called on empty queue")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if result != (DrainResult{}) {
		t.Errorf("result = %+v, want zero", result)
	}
}
