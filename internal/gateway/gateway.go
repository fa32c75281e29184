// Package gateway defines the document persistence contract consumed by the
// attempt session core. It is a key-indexed document store over named
// collections: at-least-once durable, no transactions across documents.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Document is a stored document's field set. Values follow JSON decoding
// conventions: numbers are float64, timestamps are RFC 3339 strings.
type Document map[string]any

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// OrderBy sorts query results by a field.
type OrderBy struct {
	Field string
	Desc  bool
}

// Gateway is the persistence contract the session core requires.
type Gateway interface {
	// GetByKey returns the document stored under key, or ErrNotFound.
	GetByKey(ctx context.Context, collection, key string) (Document, error)

	// Put writes fields under key. With merge=false the document is replaced
	// wholesale; with merge=true fields are overlaid onto the existing
	// document (top-level merge, matching document-store merge writes).
	Put(ctx context.Context, collection, key string, fields Document, merge bool) error

	// Query returns all documents in the collection matching every filter,
	// optionally ordered.
	Query(ctx context.Context, collection string, filters []Filter, order ...OrderBy) ([]Document, error)
}

// Conditional is an optional extension for stores that can perform atomic
// conditional writes. The session core prefers it for the terminal submit
// write and for duplicate-free session creation; callers fall back to
// read-then-write when the gateway does not implement it.
type Conditional interface {
	// Insert creates the document only if no document exists under key.
	// Returns ErrAlreadyExists otherwise.
	Insert(ctx context.Context, collection, key string, fields Document) error

	// MergeIfNull overlays fields onto the document only while guardField is
	// null or absent. Returns ErrPreconditionFailed if the guard is already
	// set, ErrNotFound if the document does not exist.
	MergeIfNull(ctx context.Context, collection, key, guardField string, fields Document) error
}

// Sentinel conditions. Everything else surfaces as *PersistenceError.
var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrPreconditionFailed = errors.New("document precondition failed")
)

// PersistenceError wraps a transient storage failure. There is no local
// retry policy: callers decide whether to surface or retry.
type PersistenceError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("persistence %s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
	}
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
