// Package queue provides the durable pending-write queue: operations that
// must eventually reach the remote store, decoupled from whether the remote
// store is reachable right now.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/store"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/uuid"
)

// drainConcurrency bounds how many operations a drain pass executes at once.
const drainConcurrency = 4

// Executor runs one queued operation against the remote side.
type Executor func(ctx context.Context, op *models.PendingOperation) error

// Queue manages pending sync operations in the store's pending_ops
// partition. The queue is expected to stay small (under ~100 entries), so
// Count and Drain read the whole partition.
type Queue struct {
	store *store.Store
}

// New creates a Queue over the durable store.
func New(st *store.Store) *Queue {
	return &Queue{store: st}
}

// Enqueue creates a pending operation with a fresh unique id and retry
// counter zero, and appends it to the queue. The payload is serialized as
// JSON.
func (q *Queue) Enqueue(kind models.OpKind, payload interface{}) (*models.PendingOperation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode operation payload", err)
	}

	op := &models.PendingOperation{
		ID:         models.NewOperationID(kind, uuid.Short()),
		Kind:       kind,
		Payload:    data,
		RetryCount: 0,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if err := q.store.EnqueueOp(op); err != nil {
		return nil, err
	}

	logging.Info("enqueued pending operation", logging.Fields{"op_id": op.ID, "kind": op.Kind})
	return op, nil
}

// Count returns the number of queued operations, used for UI badges.
func (q *Queue) Count() (int, error) {
	return q.store.CountOps()
}

// List returns all queued operations, oldest first.
func (q *Queue) List() ([]*models.PendingOperation, error) {
	return q.store.ListOps()
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Succeeded int
	Retained  int
	Discarded int
}

// Drain executes every queued operation. Operations are processed
// independently: a failure on one never blocks or aborts the others. On
// success the operation is removed; on failure its retry counter is
// incremented and the operation is kept until the counter reaches the cap,
// at which point it is discarded permanently and the loss is logged at
// error severity.
func (q *Queue) Drain(ctx context.Context, exec Executor) (DrainResult, error) {
	ops, err := q.store.ListOps()
	if err != nil {
		return DrainResult{}, err
	}
	if len(ops) == 0 {
		return DrainResult{}, nil
	}

	var (
		mu     sync.Mutex
		result DrainResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(drainConcurrency)

	for _, op := range ops {
		op := op
		g.Go(func() error {
			execErr := exec(gctx, op)
			mu.Lock()
			defer mu.Unlock()

			if execErr == nil {
				if err := q.store.DeleteOp(op.ID); err != nil {
					logging.Error("failed to remove completed operation", err, logging.Fields{"op_id": op.ID})
				}
				result.Succeeded++
				return nil
			}

			retries, err := q.store.IncrementOpRetry(op.ID)
			if err != nil {
				logging.Error("failed to record operation retry", err, logging.Fields{"op_id": op.ID})
				result.Retained++
				return nil
			}

			if retries >= models.MaxRetries {
				// Silent data-loss point: the operation is dropped for good.
				// The record itself stays in local storage.
				if err := q.store.DeleteOp(op.ID); err != nil {
					logging.Error("failed to discard exhausted operation", err, logging.Fields{"op_id": op.ID})
				}
				logging.Error("pending operation exceeded retry cap, discarding",
					apperrors.New(apperrors.ErrMaxRetriesExceeded, "operation discarded after max retries"),
					logging.Fields{"op_id": op.ID, "kind": op.Kind, "retries": retries})
				result.Discarded++
				return nil
			}

			logging.Warn("pending operation failed, will retry",
				logging.Fields{"op_id": op.ID, "kind": op.Kind, "retries": retries, "error": execErr.Error()})
			result.Retained++
			return nil
		})
	}

	// per-operation failures are absorbed above, so Wait only reflects
	// context cancellation
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
