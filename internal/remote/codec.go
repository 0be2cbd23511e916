// Package remote provides the boundary codec for the remote document store.
package remote

import (
	"encoding/json"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
)

// NullMarker is the sentinel written in place of an unset field. The remote
// store rejects undefined values, so the write path substitutes this marker
// and the read path strips it back to absence. This round trip is
// load-bearing: it keeps a sample count of "not yet entered" distinct from
// an entered zero.
const NullMarker = "__null__"

// SanitizeForWrite returns a deep copy of doc with every nil-valued field
// replaced by the null marker. Nested documents and arrays are handled
// recursively.
func SanitizeForWrite(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return NullMarker
	case Document:
		return SanitizeForWrite(t)
	case map[string]interface{}:
		return SanitizeForWrite(Document(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// RestoreAbsent returns a deep copy of doc with every null-marker field
// removed, so the in-memory record sees those fields as absent.
func RestoreAbsent(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		restored, drop := restoreValue(v)
		if drop {
			continue
		}
		out[k] = restored
	}
	return out
}

func restoreValue(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		if t == NullMarker {
			return nil, true
		}
		return t, false
	case Document:
		return RestoreAbsent(t), false
	case map[string]interface{}:
		return RestoreAbsent(Document(t)), false
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			restored, drop := restoreValue(e)
			if drop {
				// marker inside an array stays as an explicit nil slot
				out = append(out, nil)
				continue
			}
			out = append(out, restored)
		}
		return out, false
	default:
		return v, false
	}
}

// RecordToDocument converts a record to its document form. Unset optional
// fields marshal as explicit JSON nulls, which SanitizeForWrite then turns
// into null markers on the wire.
func RecordToDocument(rec *models.Record) (Document, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode record", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to convert record to document", err)
	}
	return doc, nil
}

// DocumentToRecord converts a document (already passed through
// RestoreAbsent) back to a record. Missing optional fields stay nil.
func DocumentToRecord(doc Document) (*models.Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode document", err)
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to decode document into record", err)
	}
	return &rec, nil
}
