// Package models provides data model definitions for the resistance-test core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpKind identifies the type of a queued sync operation.
type OpKind string

const (
	OpSave        OpKind = "save"
	OpUpdate      OpKind = "update"
	OpDelete      OpKind = "delete"
	OpUploadPhoto OpKind = "upload-photo"
)

// MaxRetries is the retry cap for a pending operation. An operation that
// fails this many times is discarded from the queue; the record itself
// stays in local storage.
const MaxRetries = 3

// PendingOperation represents a queued intent to synchronize one record
// (or a sub-action like a photo upload) to the remote store.
type PendingOperation struct {
	ID         string          `json:"id"`
	Kind       OpKind          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retryCount"`
	CreatedAt  int64           `json:"createdAt"` // unix milliseconds
}

// NewOperationID builds a unique operation id from the kind, the current
// timestamp and a random suffix.
func NewOperationID(kind OpKind, suffix string) string {
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), suffix)
}

// PendingMarker is a pending_sync partition entry: the id of a record whose
// last remote write failed, plus when it was marked. The full record data
// is fetched from the records partition when the marker is retried.
type PendingMarker struct {
	RecordID string `json:"id"`
	MarkedAt int64  `json:"timestamp"` // unix milliseconds
}
