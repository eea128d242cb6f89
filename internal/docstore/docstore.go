// Package docstore defines the schemaless document store contract used by
// the repositories, the batch writer and the session replicator. Documents
// are flat maps addressed by collection and id; the interface is satisfied
// by an in-memory implementation for tests and a Firestore adapter in
// production.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Doc is one stored document. Values are restricted to the kinds
// enumerated by Value; ValueOf reports anything else as an error.
type Doc map[string]any

// ErrNotFound is returned by Get when no document has the requested id.
var ErrNotFound = errors.New("docstore: document not found")

// ErrAlreadyExists is returned by a create write when the id is taken.
var ErrAlreadyExists = errors.New("docstore: document already exists")

// Filter is a single field-equality predicate. Queries are conjunctions
// of filters; there is no inequality or ordering support at this layer.
type Filter struct {
	Field string
	Value any
}

// OpKind is the type of a batched write.
type OpKind string

const (
	// OpCreate fails the batch if the document already exists.
	OpCreate OpKind = "create"
	// OpSet creates or fully overwrites the document.
	OpSet OpKind = "set"
	// OpDelete removes the document; deleting a missing id is not an error.
	OpDelete OpKind = "delete"
)

// WriteOp is one element of an atomic batch.
type WriteOp struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        Doc
}

// MaxBatchOps is the largest batch ApplyBatch accepts in one call. Larger
// writes must be chunked by the caller; the batch writer does this.
const MaxBatchOps = 500

// Store is a handle to the document database.
type Store interface {
	// Collection returns a handle to the named collection. Collections
	// spring into existence on first write.
	Collection(name string) Collection

	// ApplyBatch commits up to MaxBatchOps writes atomically: either every
	// op in the slice is applied or none is.
	ApplyBatch(ctx context.Context, ops []WriteOp) error
}

// Collection is a handle to one named collection.
type Collection interface {
	Get(ctx context.Context, id string) (Doc, error)
	Set(ctx context.Context, id string, doc Doc) error
	Create(ctx context.Context, id string, doc Doc) error
	Delete(ctx context.Context, id string) error

	// Query returns the documents matching every filter, in unspecified
	// order. Callers needing determinism sort the results themselves.
	Query(ctx context.Context, filters ...Filter) ([]Doc, error)

	// IDs returns the ids of documents matching every filter.
	IDs(ctx context.Context, filters ...Filter) ([]string, error)
}

// ValidateOps checks a batch for size and per-op completeness before it is
// handed to a Store.
func ValidateOps(ops []WriteOp) error {
	if len(ops) == 0 {
		return fmt.Errorf("ValidateOps: empty batch")
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("ValidateOps: batch of %d exceeds limit of %d", len(ops), MaxBatchOps)
	}
	for i, op := range ops {
		if op.Collection == "" || op.ID == "" {
			return fmt.Errorf("ValidateOps: op %d missing collection or id", i)
		}
		switch op.Kind {
		case OpCreate, OpSet:
			if op.Doc == nil {
				return fmt.Errorf("ValidateOps: op %d (%s) has no document", i, op.Kind)
			}
		case OpDelete:
		default:
			return fmt.Errorf("ValidateOps: op %d has unknown kind %q", i, op.Kind)
		}
	}
	return nil
}
