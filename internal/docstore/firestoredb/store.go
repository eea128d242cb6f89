// Package firestoredb backs the document store contract with Cloud
// Firestore. Batches are committed inside a transaction so the 500-op
// atomicity guarantee holds.
package firestoredb

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mzharov/finrecon/internal/docstore"
)

// Store wraps a Firestore client.
type Store struct {
	client *firestore.Client
}

// New connects to the given project and database. Credentials come from
// the environment unless overridden through opts.
func New(ctx context.Context, projectID, database string, opts ...option.ClientOption) (*Store, error) {
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("New: create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Collection implements the Store interface.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{ref: s.client.Collection(name)}
}

// ApplyBatch implements the Store interface. The whole slice is written in
// one transaction, so either every op lands or none does.
func (s *Store) ApplyBatch(ctx context.Context, ops []docstore.WriteOp) error {
	if err := docstore.ValidateOps(ops); err != nil {
		return fmt.Errorf("ApplyBatch: %w", err)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, op := range ops {
			ref := s.client.Collection(op.Collection).Doc(op.ID)
			var err error
			switch op.Kind {
			case docstore.OpCreate:
				err = tx.Create(ref, map[string]any(op.Doc))
			case docstore.OpSet:
				err = tx.Set(ref, map[string]any(op.Doc))
			case docstore.OpDelete:
				err = tx.Delete(ref)
			}
			if err != nil {
				return fmt.Errorf("op %d (%s %s/%s): %w", i, op.Kind, op.Collection, op.ID, translateErr(err))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ApplyBatch: %w", err)
	}
	return nil
}

type collection struct {
	ref *firestore.CollectionRef
}

func (c *collection) Get(ctx context.Context, id string) (docstore.Doc, error) {
	snap, err := c.ref.Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get: %s/%s: %w", c.ref.ID, id, translateErr(err))
	}
	return docstore.Doc(snap.Data()), nil
}

func (c *collection) Set(ctx context.Context, id string, doc docstore.Doc) error {
	if _, err := c.ref.Doc(id).Set(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("Set: %s/%s: %w", c.ref.ID, id, translateErr(err))
	}
	return nil
}

func (c *collection) Create(ctx context.Context, id string, doc docstore.Doc) error {
	if _, err := c.ref.Doc(id).Create(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("Create: %s/%s: %w", c.ref.ID, id, translateErr(err))
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	if _, err := c.ref.Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("Delete: %s/%s: %w", c.ref.ID, id, translateErr(err))
	}
	return nil
}

func (c *collection) Query(ctx context.Context, filters ...docstore.Filter) ([]docstore.Doc, error) {
	iter := c.query(filters).Documents(ctx)
	defer iter.Stop()

	var result []docstore.Doc
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("Query: %s: %w", c.ref.ID, err)
		}
		result = append(result, docstore.Doc(snap.Data()))
	}
}

func (c *collection) IDs(ctx context.Context, filters ...docstore.Filter) ([]string, error) {
	iter := c.query(filters).Select().Documents(ctx)
	defer iter.Stop()

	var result []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("IDs: %s: %w", c.ref.ID, err)
		}
		result = append(result, snap.Ref.ID)
	}
}

func (c *collection) query(filters []docstore.Filter) firestore.Query {
	q := c.ref.Query
	for _, f := range filters {
		q = q.WhereEntity(firestore.PropertyFilter{Path: f.Field, Operator: "==", Value: f.Value})
	}
	return q
}

// translateErr maps Firestore status codes onto the docstore sentinel
// errors so callers can errors.Is without importing grpc.
func translateErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	default:
		return err
	}
}

var _ docstore.Store = (*Store)(nil)
