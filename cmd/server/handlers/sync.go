// Package handlers: sync status and manual sync triggers.
package handlers

import (
	"net/http"

	syncengine "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync/scheduler"
)

// SyncHandler serves sync state and manual triggers.
type SyncHandler struct {
	engine *syncengine.Engine
	sched  *scheduler.Scheduler
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine *syncengine.Engine, sched *scheduler.Scheduler) *SyncHandler {
	return &SyncHandler{engine: engine, sched: sched}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	type response struct {
		syncengine.Status
		Online bool `json:"online"`
	}
	writeJSON(w, http.StatusOK, response{
		Status: h.engine.Status(),
		Online: h.sched.Online(),
	})
}

// Pending handles GET /api/sync/pending: the records and operations still
// waiting to reach the remote store.
func (h *SyncHandler) Pending(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()
	writeJSON(w, http.StatusOK, map[string]int{
		"pendingRecords": status.PendingRecords,
		"queuedOps":      status.QueuedOps,
	})
}

// Retry handles POST /api/sync/retry: asks the scheduler for an immediate
// retry pass. The pass runs in the background; callers watch the WebSocket
// status feed for the outcome.
func (h *SyncHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.sched.TriggerRetry()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry scheduled"})
}

// Reconcile handles POST /api/sync/reconcile: kicks off a detached
// reconciliation pass.
func (h *SyncHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.engine.ReconcileDetached()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconcile scheduled"})
}
