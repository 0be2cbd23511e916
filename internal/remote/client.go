// Package remote provides the thin client over the remote document store.
package remote

import "context"

// Document is a plain key-value document as exchanged with the remote store.
type Document map[string]interface{}

// Operator is a query comparator.
type Operator string

const (
	OpEqual       Operator = "=="
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
)

// Query describes a single-field filter with optional ordering and limit.
// An empty Field means no filter (fetch all, subject to order and limit).
type Query struct {
	Field   string      `json:"field,omitempty"`
	Op      Operator    `json:"op,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	OrderBy string      `json:"orderBy,omitempty"`
	Desc    bool        `json:"desc,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}

// Client is the remote document store surface the sync core depends on.
//
// Implementations must honor the null/absent round trip implemented by
// SanitizeForWrite and RestoreAbsent: an absent optional field written
// through Put comes back absent from GetByID, never as a zero value.
type Client interface {
	// GetByID returns a document by id, or nil when absent. Absence is
	// not an error.
	GetByID(ctx context.Context, collection, id string) (Document, error)

	// GetAll returns every document in a collection.
	GetAll(ctx context.Context, collection string) ([]Document, error)

	// Query returns the documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Put writes a full document under the given id.
	Put(ctx context.Context, collection, id string, doc Document) error

	// Update applies a partial document to an existing one.
	Update(ctx context.Context, collection, id string, partial Document) error

	// Delete removes a document. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error
}
