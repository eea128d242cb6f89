// Package inmemory is an in-memory implementation of the document store.
// It is safe for concurrent use. Data is lost on restart - for persistence,
// use the Firestore-backed store.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mzharov/finrecon/internal/docstore"
)

// Store holds all collections in process memory behind one lock, which is
// what makes batch atomicity trivial here.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Doc
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Doc),
	}
}

// Collection implements the Store interface.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{store: s, name: name}
}

// ApplyBatch implements the Store interface. Ops are validated and checked
// for create conflicts before anything is written, so a failed batch leaves
// the store untouched.
func (s *Store) ApplyBatch(ctx context.Context, ops []docstore.WriteOp) error {
	if err := docstore.ValidateOps(ops); err != nil {
		return fmt.Errorf("ApplyBatch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range ops {
		if op.Kind != docstore.OpCreate {
			continue
		}
		if _, exists := s.collections[op.Collection][op.ID]; exists {
			return fmt.Errorf("ApplyBatch: op %d: %s/%s: %w", i, op.Collection, op.ID, docstore.ErrAlreadyExists)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpCreate, docstore.OpSet:
			s.docs(op.Collection)[op.ID] = copyDoc(op.Doc)
		case docstore.OpDelete:
			delete(s.docs(op.Collection), op.ID)
		}
	}
	return nil
}

// docs returns the named collection's map, creating it if needed. Caller
// must hold the write lock.
func (s *Store) docs(name string) map[string]docstore.Doc {
	if s.collections[name] == nil {
		s.collections[name] = make(map[string]docstore.Doc)
	}
	return s.collections[name]
}

type collection struct {
	store *Store
	name  string
}

func (c *collection) Get(ctx context.Context, id string) (docstore.Doc, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	doc, exists := c.store.collections[c.name][id]
	if !exists {
		return nil, fmt.Errorf("Get: %s/%s: %w", c.name, id, docstore.ErrNotFound)
	}
	return copyDoc(doc), nil
}

func (c *collection) Set(ctx context.Context, id string, doc docstore.Doc) error {
	if id == "" {
		return fmt.Errorf("Set: id is required")
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.docs(c.name)[id] = copyDoc(doc)
	return nil
}

func (c *collection) Create(ctx context.Context, id string, doc docstore.Doc) error {
	if id == "" {
		return fmt.Errorf("Create: id is required")
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, exists := c.store.collections[c.name][id]; exists {
		return fmt.Errorf("Create: %s/%s: %w", c.name, id, docstore.ErrAlreadyExists)
	}
	c.store.docs(c.name)[id] = copyDoc(doc)
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	delete(c.store.docs(c.name), id)
	return nil
}

func (c *collection) Query(ctx context.Context, filters ...docstore.Filter) ([]docstore.Doc, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var result []docstore.Doc
	for _, doc := range c.store.collections[c.name] {
		if matches(doc, filters) {
			result = append(result, copyDoc(doc))
		}
	}
	return result, nil
}

func (c *collection) IDs(ctx context.Context, filters ...docstore.Filter) ([]string, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var result []string
	for id, doc := range c.store.collections[c.name] {
		if matches(doc, filters) {
			result = append(result, id)
		}
	}
	return result, nil
}

func matches(doc docstore.Doc, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

// equal compares a stored field against a filter value through the Value
// classification, so that e.g. an int filter matches an int64 field.
func equal(a, b any) bool {
	va, errA := docstore.ValueOf(a)
	vb, errB := docstore.ValueOf(b)
	if errA != nil || errB != nil || va.Kind != vb.Kind {
		return false
	}
	switch va.Kind {
	case docstore.KindString:
		return va.Str == vb.Str
	case docstore.KindNumber:
		return va.Num.Equal(vb.Num)
	case docstore.KindBool:
		return va.Bool == vb.Bool
	case docstore.KindTime:
		return va.Time.Equal(vb.Time)
	case docstore.KindNull:
		return true
	default:
		return false
	}
}

// copyDoc deep-copies a document so callers cannot mutate stored state.
func copyDoc(doc docstore.Doc) docstore.Doc {
	out := make(docstore.Doc, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = copyValue(inner)
		}
		return m
	case docstore.Doc:
		return map[string]any(copyDoc(val))
	case []any:
		l := make([]any, len(val))
		for i, inner := range val {
			l[i] = copyValue(inner)
		}
		return l
	case []string:
		l := make([]string, len(val))
		copy(l, val)
		return l
	case []byte:
		b := make([]byte, len(val))
		copy(b, val)
		return b
	default:
		return v
	}
}

// Ensure Store implements the docstore interfaces.
var _ docstore.Store = (*Store)(nil)
var _ docstore.Collection = (*collection)(nil)
