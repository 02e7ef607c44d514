// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a flat field map as last read from the backing store. Values
// hold the raw JSON encoding of each field.
type Document map[string]json.RawMessage

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Store is the keyed shared-record contract the duel core runs against.
// There is no cross-field transaction: concurrent writes to different fields
// merge, same-field writes resolve last-write-wins. SetIfAbsent is the one
// atomic primitive, used where last-write-wins is not acceptable (seat
// claims, rematch arbitration).
type Store interface {
	// Get returns the full document, or ErrNotFound.
	Get(ctx context.Context, key string) (Document, error)

	// Set replaces the whole document with the given fields.
	Set(ctx context.Context, key string, fields map[string]interface{}) error

	// Update merges the given fields into the document, creating it if absent.
	Update(ctx context.Context, key string, fields map[string]interface{}) error

	// AppendAtomic appends value to the named array field. The append is
	// order-independent and duplicate-safe: appending a value already
	// present is a no-op.
	AppendAtomic(ctx context.Context, key, field string, value interface{}) error

	// RemoveAtomic removes the first element equal to value from the named
	// array field and returns how many elements remain. A missing document,
	// field, or element leaves the array untouched.
	RemoveAtomic(ctx context.Context, key, field string, value interface{}) (int, error)

	// SetIfAbsent writes the field only if it is currently missing, null, or
	// the empty string. Returns whether the claim succeeded.
	SetIfAbsent(ctx context.Context, key, field string, value interface{}) (bool, error)

	// Subscribe registers a change listener for the key. Every committed
	// write fans out the full current document to onChange. The returned
	// function cancels the subscription.
	Subscribe(ctx context.Context, key string, onChange func(Document), onError func(error)) (func(), error)
}

// Clone returns a shallow copy of the document. Field values are raw JSON
// and treated as immutable by all callers.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// encodeFields marshals every field value to its raw JSON form.
func encodeFields(fields map[string]interface{}) (Document, error) {
	doc := make(Document, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		doc[k] = data
	}
	return doc, nil
}

// isAbsent reports whether a raw field value counts as unset for SetIfAbsent.
func isAbsent(raw json.RawMessage, ok bool) bool {
	if !ok {
		return true
	}
	s := string(raw)
	return s == "" || s == "null" || s == `""`
}
