// Package docstore defines the generic key-path document store the content
// core is layered on: atomic read-modify-write transactions on single
// documents plus ordered, append-only collections.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the document or row does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict indicates a transaction was aborted because a concurrent
	// transaction touched the same document. Callers may retry or surface it.
	ErrConflict = errors.New("docstore: transaction conflict")
)

// Tx exposes transactional reads and writes inside RunTransaction. The read
// of current state and the write of new state are indivisible with respect
// to other transactions on the same path.
type Tx interface {
	Get(path string) (map[string]any, error)
	Set(path string, value map[string]any) error
	Delete(path string) error
}

// Row is one entry of an append-only collection.
type Row struct {
	ID    string
	Value map[string]any
}

// Filter ops.
const (
	OpEqual   = "=="
	OpAtLeast = ">="
	OpAtMost  = "<="
)

// Filter is a predicate on a top-level field of a row value. Op defaults to
// OpEqual; range ops compare the string forms, which is order-correct for
// fixed-width timestamps.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query shapes a collection read. Results are ordered by OrderBy (or by row
// id when empty), honoring Desc, and resume after the row identified by
// AfterID when set.
type Query struct {
	Filters      []Filter
	OrderBy      string
	OrderNumeric bool
	Desc         bool
	Limit        int
	AfterID      string
}

// Store is the document database boundary. Implementations must provide the
// abort-on-conflict primitive for RunTransaction; everything above this
// interface treats the store as opaque.
type Store interface {
	Get(ctx context.Context, path string) (map[string]any, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	AddToCollection(ctx context.Context, collection string, value map[string]any) (string, error)
	QueryCollection(ctx context.Context, collection string, q Query) ([]Row, error)
	DeleteFromCollection(ctx context.Context, collection, id string) error
}
