// Package handlers provides the REST API handlers for record entry and
// sync operations.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
	syncengine "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync"
)

// RecordsHandler serves record CRUD over the sync engine. All reads come
// from the local store first; writes go local-first with best-effort remote
// sync, so the handler only fails when local storage itself is down.
type RecordsHandler struct {
	engine *syncengine.Engine
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(engine *syncengine.Engine) *RecordsHandler {
	return &RecordsHandler{engine: engine}
}

// List handles GET /api/records.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.ListRecords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /api/records/{id}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.engine.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Save handles PUT /api/records/{id}.
func (h *RecordsHandler) Save(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var rec models.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec.ID = id

	if strings.HasPrefix(id, models.ReservedIDPrefix) {
		http.Error(w, "record id uses a reserved prefix", http.StatusBadRequest)
		return
	}
	if rec.LotNumber == "" {
		http.Error(w, "lotNumber is required", http.StatusBadRequest)
		return
	}
	if rec.Date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.SaveRecord(r.Context(), &rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &rec)
}

// Delete handles DELETE /api/records/{id}.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.DeleteRecord(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadPhoto handles POST /api/records/{id}/photos. The photo bytes are
// queued for upload to the archive; the response does not wait for the
// upload itself.
func (h *RecordsHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sampleID := r.URL.Query().Get("sampleId")
	if sampleID == "" {
		http.Error(w, "sampleId is required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		http.Error(w, "failed to read photo data", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty photo data", http.StatusBadRequest)
		return
	}

	path := "photos/" + id + "/" + sampleID + ".jpg"
	if err := h.engine.EnqueuePhotoUpload(id, sampleID, path, data); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"path": path})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
