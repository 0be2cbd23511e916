// Package sync orchestrates the local-first write path: dual-write on save,
// read-through on get, incremental reconciliation against the remote store,
// and retry of pending writes.
package sync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/blob"
	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/remote"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/store"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync/queue"
)

const (
	// DefaultCapacity is the local cache bound: reconciliation evicts
	// oldest-by-date records beyond it.
	DefaultCapacity = 50

	// DefaultCollection is the remote collection holding test records.
	DefaultCollection = "resistance_tests"

	// DefaultRemoteTimeout bounds individual remote calls so a hung
	// connection is classified as a failure instead of stalling a save.
	DefaultRemoteTimeout = 5 * time.Second

	// reconcileTimeout bounds a detached reconciliation pass.
	reconcileTimeout = 30 * time.Second
)

// Config holds engine configuration.
type Config struct {
	Collection    string
	Capacity      int
	RemoteTimeout time.Duration
}

// Engine ties the durable store, the remote client and the pending queue
// together. It is constructed once at startup and passed to callers
// explicitly; sync state is exposed through Status, not package-level
// variables.
type Engine struct {
	store      *store.Store
	remote     remote.Client
	queue      *queue.Queue
	photos     blob.Store // may be nil: upload-photo operations fail until configured
	collection string
	capacity   int
	timeout    time.Duration

	mu            sync.Mutex
	inflight      map[string]chan struct{}
	reconciling   bool
	lastReconcile time.Time
}

// NewEngine creates an Engine. photos may be nil when no photo archive is
// configured.
func NewEngine(st *store.Store, rc remote.Client, q *queue.Queue, photos blob.Store, cfg Config) *Engine {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	return &Engine{
		store:      st,
		remote:     rc,
		queue:      q,
		photos:     photos,
		collection: cfg.Collection,
		capacity:   cfg.Capacity,
		timeout:    cfg.RemoteTimeout,
		inflight:   make(map[string]chan struct{}),
	}
}

// =====================================================
// Dual-write save path
// =====================================================

// SaveRecord durably saves a record: local write first, then a best-effort
// remote write. Remote failures are classified for logging, mark the record
// pending and are never returned to the caller. The only error surfaced is
// a local-storage failure on the very first write of a brand-new record,
// when there is nothing to fall back to.
//
// Overlapping saves for the same record id are serialized: a second save
// waits for the first to finish instead of racing it.
func (e *Engine) SaveRecord(ctx context.Context, rec *models.Record) error {
	release, err := e.acquire(ctx, rec.ID)
	if err != nil {
		return err
	}
	defer release()

	prior, priorErr := e.store.GetRecord(rec.ID)
	if priorErr != nil {
		logging.Warn("could not check for existing local copy", logging.Fields{"record_id": rec.ID, "error": priorErr.Error()})
	}

	rec.Touch()

	localErr := e.store.PutRecord(rec)
	if localErr != nil {
		// degrade to remote-only; unsynced work may be lost but the save
		// path must not abort here
		logging.Error("local write failed, continuing with remote write", localErr, logging.Fields{"record_id": rec.ID})
	}

	remoteErr := e.putRemote(ctx, rec)
	if remoteErr == nil {
		if err := e.store.ClearPending(rec.ID); err != nil {
			logging.Error("failed to clear pending marker after successful sync", err, logging.Fields{"record_id": rec.ID})
		}
		return nil
	}

	e.logRemoteFailure("save", rec.ID, remoteErr)

	if err := e.store.MarkPending(rec.ID); err != nil {
		logging.Error("failed to mark record pending", err, logging.Fields{"record_id": rec.ID})
	}

	if localErr != nil && prior == nil {
		// brand-new record stored nowhere
		return localErr
	}
	return nil
}

// putRemote writes the record to the remote collection under the call
// timeout.
func (e *Engine) putRemote(ctx context.Context, rec *models.Record) error {
	doc, err := remote.RecordToDocument(rec)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.remote.Put(rctx, e.collection, rec.ID, doc)
}

// acquire blocks until no other save for the same id is in flight, then
// registers this one. The returned release must be called when the save
// finishes.
func (e *Engine) acquire(ctx context.Context, id string) (func(), error) {
	for {
		e.mu.Lock()
		prev, busy := e.inflight[id]
		if !busy {
			ch := make(chan struct{})
			e.inflight[id] = ch
			e.mu.Unlock()
			return func() {
				e.mu.Lock()
				delete(e.inflight, id)
				e.mu.Unlock()
				close(ch)
			}, nil
		}
		e.mu.Unlock()

		select {
		case <-prev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// =====================================================
// Read-through path
// =====================================================

// GetRecord serves a record from the local store when present, falling
// through to the remote store only on a cache miss. A remote hit is written
// back into the local store before returning. Absence everywhere returns
// (nil, nil), not an error. Serving a cached read also kicks off a detached
// reconciliation pass.
func (e *Engine) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	rec, err := e.store.GetRecord(id)
	if err != nil {
		logging.Error("local read failed, falling through to remote", err, logging.Fields{"record_id": id})
	}
	if rec != nil {
		e.ReconcileDetached()
		return rec, nil
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	doc, rerr := e.remote.GetByID(rctx, e.collection, id)
	if rerr != nil {
		e.logRemoteFailure("read", id, rerr)
		return nil, nil
	}
	if doc == nil {
		return nil, nil
	}

	fetched, cerr := remote.DocumentToRecord(doc)
	if cerr != nil {
		logging.Error("failed to decode remote record", cerr, logging.Fields{"record_id": id})
		return nil, nil
	}

	// cache-fill
	if err := e.store.PutRecord(fetched); err != nil {
		logging.Error("failed to cache remote record locally", err, logging.Fields{"record_id": id})
	}
	return fetched, nil
}

// ListRecords returns all local data records, newest first, and kicks off a
// detached reconciliation pass to pull down anything that changed remotely.
func (e *Engine) ListRecords(ctx context.Context) ([]*models.Record, error) {
	records, err := e.store.ListRecords()
	if err != nil {
		return nil, err
	}
	e.ReconcileDetached()
	return records, nil
}

// =====================================================
// Delete path
// =====================================================

// DeleteRecord removes a record locally and best-effort remotely. A remote
// failure enqueues a delete operation for a later drain pass; the caller
// never sees remote errors.
func (e *Engine) DeleteRecord(ctx context.Context, id string) error {
	if err := e.store.DeleteRecord(id); err != nil {
		logging.Error("local delete failed, continuing with remote delete", err, logging.Fields{"record_id": id})
	}
	if err := e.store.ClearPending(id); err != nil {
		logging.Error("failed to clear pending marker on delete", err, logging.Fields{"record_id": id})
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.remote.Delete(rctx, e.collection, id); err != nil {
		e.logRemoteFailure("delete", id, err)
		if _, qerr := e.queue.Enqueue(models.OpDelete, deletePayload{ID: id}); qerr != nil {
			logging.Error("failed to enqueue delete operation", qerr, logging.Fields{"record_id": id})
		}
	}
	return nil
}

// =====================================================
// Incremental reconciliation
// =====================================================

// Reconcile pulls remote changes since the last watermark into the local
// store, evicts oldest-by-date records beyond the capacity bound and
// advances the watermark — even when the delta was empty, so redundant full
// rescans are avoided. The watermark is not advanced when the pass fails
// before completing.
//
// Concurrent passes are collapsed: a pass that finds another one running
// returns immediately. Re-fetching the same delta twice is harmless, so a
// lost watermark update is a performance concern only.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	if e.reconciling {
		e.mu.Unlock()
		logging.Debug("reconciliation already in progress, skipping")
		return nil
	}
	e.reconciling = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.reconciling = false
		e.mu.Unlock()
	}()

	watermark, haveWatermark, err := e.store.GetSyncTimestamp()
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var docs []remote.Document
	if haveWatermark {
		docs, err = e.remote.Query(rctx, e.collection, remote.Query{
			Field:   "updatedAt",
			Op:      remote.OpGreaterThan,
			Value:   watermark,
			OrderBy: "updatedAt",
			Desc:    true,
		})
	} else {
		// first run: bounded initial fetch, newest tests first
		docs, err = e.remote.Query(rctx, e.collection, remote.Query{
			OrderBy: "date",
			Desc:    true,
			Limit:   e.capacity,
		})
	}
	if err != nil {
		e.logRemoteFailure("reconcile", "", err)
		return err
	}

	applied := 0
	for _, doc := range docs {
		rec, cerr := remote.DocumentToRecord(doc)
		if cerr != nil {
			logging.Warn("skipping undecodable remote document", logging.Fields{"error": cerr.Error()})
			continue
		}
		if perr := e.store.PutRecord(rec); perr != nil {
			logging.Error("failed to apply remote record", perr, logging.Fields{"record_id": rec.ID})
			continue
		}
		applied++
	}

	e.evict()

	// an empty delta still advances the watermark
	if err := e.store.SetSyncTimestamp(time.Now().UnixMilli()); err != nil {
		return err
	}

	e.mu.Lock()
	e.lastReconcile = time.Now()
	e.mu.Unlock()

	logging.Info("reconciliation pass completed", logging.Fields{
		"fetched": len(docs),
		"applied": applied,
		"initial": !haveWatermark,
	})
	return nil
}

// ReconcileDetached runs a reconciliation pass in a detached goroutine with
// its own timeout; failures are logged, never surfaced to the caller that
// triggered it.
func (e *Engine) ReconcileDetached() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if err := e.Reconcile(ctx); err != nil {
			logging.Error("background reconciliation failed", err)
		}
	}()
}

// evict enforces the capacity bound. Eviction does not consult pending
// markers before deleting, matching the reference behavior; a record with
// unsynced local edits can therefore be evicted before reaching the remote
// store, which is logged as a data-loss risk when it happens.
func (e *Engine) evict() {
	n, err := e.store.CountRecords()
	if err != nil {
		logging.Error("failed to count records for eviction", err)
		return
	}
	if n <= e.capacity {
		return
	}

	evicted, err := e.store.EvictOldest(n - e.capacity)
	if err != nil {
		logging.Error("eviction failed", err)
		return
	}

	for _, id := range evicted {
		pending, perr := e.store.IsPending(id)
		if perr == nil && pending {
			logging.Warn("evicted a record that still had unsynced local edits",
				logging.Fields{"record_id": id})
		}
	}

	logging.Info("evicted records beyond capacity", logging.Fields{
		"evicted":  len(evicted),
		"capacity": e.capacity,
	})
}

// =====================================================
// Retry of pending writes
// =====================================================

// RetryPending repeats the remote write for every pending marker whose
// record still exists locally. Successes clear the marker; failures leave
// it queued with no retry-counter involved — this path is driven by
// connectivity-restoration events, not the generic queue drain.
func (e *Engine) RetryPending(ctx context.Context) (int, error) {
	markers, err := e.store.ListPendingMarkers()
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, m := range markers {
		rec, gerr := e.store.GetRecord(m.RecordID)
		if gerr != nil {
			logging.Error("failed to load pending record", gerr, logging.Fields{"record_id": m.RecordID})
			continue
		}
		if rec == nil {
			continue
		}

		if perr := e.putRemote(ctx, rec); perr != nil {
			e.logRemoteFailure("retry", rec.ID, perr)
			continue
		}

		if cerr := e.store.ClearPending(rec.ID); cerr != nil {
			logging.Error("failed to clear pending marker after retry", cerr, logging.Fields{"record_id": rec.ID})
			continue
		}
		synced++
	}

	if len(markers) > 0 {
		logging.Info("pending retry pass completed", logging.Fields{
			"pending": len(markers),
			"synced":  synced,
		})
	}
	return synced, nil
}

// ResumeSync is the connectivity-restored entry point: it retries pending
// record writes and then drains the generic operation queue.
func (e *Engine) ResumeSync(ctx context.Context) (ResumeResult, error) {
	synced, err := e.RetryPending(ctx)
	if err != nil {
		return ResumeResult{}, err
	}

	drain, err := e.queue.Drain(ctx, e.ExecuteOp)
	if err != nil {
		return ResumeResult{RecordsSynced: synced}, err
	}

	return ResumeResult{RecordsSynced: synced, Drain: drain}, nil
}

// ResumeResult summarizes a connectivity-restored sync pass.
type ResumeResult struct {
	RecordsSynced int
	Drain         queue.DrainResult
}

// =====================================================
// Queue operation execution
// =====================================================

// deletePayload is the payload of a queued delete operation.
type deletePayload struct {
	ID string `json:"id"`
}

// photoPayload is the payload of a queued upload-photo operation. The photo
// bytes ride along base64-encoded so the upload can happen long after the
// capture.
type photoPayload struct {
	RecordID string `json:"recordId"`
	SampleID string `json:"sampleId"`
	Path     string `json:"path"`
	Data     string `json:"data"`
}

// EnqueuePhotoUpload queues a photo for upload to the archive.
func (e *Engine) EnqueuePhotoUpload(recordID, sampleID, path string, data []byte) error {
	_, err := e.queue.Enqueue(models.OpUploadPhoto, photoPayload{
		RecordID: recordID,
		SampleID: sampleID,
		Path:     path,
		Data:     base64.StdEncoding.EncodeToString(data),
	})
	return err
}

// ExecuteOp runs one queued operation. It is the executor handed to the
// queue's drain pass.
func (e *Engine) ExecuteOp(ctx context.Context, op *models.PendingOperation) error {
	switch op.Kind {
	case models.OpSave, models.OpUpdate:
		var rec models.Record
		if err := json.Unmarshal(op.Payload, &rec); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "invalid record payload", err)
		}
		// prefer the current local copy over the snapshot in the payload
		if current, err := e.store.GetRecord(rec.ID); err == nil && current != nil {
			return e.putRemote(ctx, current)
		}
		return e.putRemote(ctx, &rec)

	case models.OpDelete:
		var p deletePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "invalid delete payload", err)
		}
		rctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.remote.Delete(rctx, e.collection, p.ID)

	case models.OpUploadPhoto:
		if e.photos == nil {
			return apperrors.New(apperrors.ErrBlobUploadFailed, "photo archive not configured")
		}
		var p photoPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "invalid photo payload", err)
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "invalid photo data", err)
		}
		return e.photos.Upload(ctx, p.Path, data)

	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown operation kind: "+string(op.Kind))
	}
}

// =====================================================
// Status
// =====================================================

// Status is a point-in-time snapshot of the engine's sync state.
type Status struct {
	LocalRecords   int        `json:"localRecords"`
	PendingRecords int        `json:"pendingRecords"`
	QueuedOps      int        `json:"queuedOps"`
	Capacity       int        `json:"capacity"`
	LastReconcile  *time.Time `json:"lastReconcile,omitempty"`
}

// Status reports the engine's current sync state. Counters that cannot be
// read are reported as zero.
func (e *Engine) Status() Status {
	s := Status{Capacity: e.capacity}

	if n, err := e.store.CountRecords(); err == nil {
		s.LocalRecords = n
	}
	if n, err := e.store.CountPending(); err == nil {
		s.PendingRecords = n
	}
	if n, err := e.queue.Count(); err == nil {
		s.QueuedOps = n
	}

	e.mu.Lock()
	if !e.lastReconcile.IsZero() {
		t := e.lastReconcile
		s.LastReconcile = &t
	}
	e.mu.Unlock()

	return s
}

// logRemoteFailure classifies a remote error for logging only; control flow
// treats permission errors like unreachability so the local copy is never
// held hostage to a permissions fix.
func (e *Engine) logRemoteFailure(op, recordID string, err error) {
	fields := logging.Fields{"op": op}
	if recordID != "" {
		fields["record_id"] = recordID
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrRemotePermissionDenied:
		logging.Warn("remote write denied: "+err.Error(), fields)
	case apperrors.ErrRemoteUnreachable:
		logging.Info("remote unreachable: "+err.Error(), fields)
	default:
		logging.Warn("remote operation failed: "+err.Error(), fields)
	}
}
