package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/mzharov/finrecon/internal/docstore"
)

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	col := store.Collection("documents")

	doc := docstore.Doc{"counterpartyName": "Acme", "total": 100.0}
	if err := col.Set(ctx, "doc-1", doc); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := col.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["counterpartyName"] != "Acme" {
		t.Errorf("expected counterpartyName Acme, got %v", got["counterpartyName"])
	}
}

func TestGetMissing(t *testing.T) {
	store := NewStore()
	_, err := store.Collection("documents").Get(context.Background(), "nope")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	col := NewStore().Collection("documents")

	if err := col.Create(ctx, "doc-1", docstore.Doc{"a": "b"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := col.Create(ctx, "doc-1", docstore.Doc{"a": "c"})
	if !errors.Is(err, docstore.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDeleteMissingIsNoError(t *testing.T) {
	col := NewStore().Collection("documents")
	if err := col.Delete(context.Background(), "nope"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	col := store.Collection("documents")

	_ = col.Set(ctx, "d1", docstore.Doc{"ownerId": "u1", "paymentStatus": "unpaid"})
	_ = col.Set(ctx, "d2", docstore.Doc{"ownerId": "u1", "paymentStatus": "paid"})
	_ = col.Set(ctx, "d3", docstore.Doc{"ownerId": "u2", "paymentStatus": "unpaid"})

	tests := []struct {
		name    string
		filters []docstore.Filter
		want    int
	}{
		{"by owner", []docstore.Filter{{Field: "ownerId", Value: "u1"}}, 2},
		{"conjunction", []docstore.Filter{{Field: "ownerId", Value: "u1"}, {Field: "paymentStatus", Value: "unpaid"}}, 1},
		{"no match", []docstore.Filter{{Field: "ownerId", Value: "u3"}}, 0},
		{"missing field", []docstore.Filter{{Field: "zzz", Value: "x"}}, 0},
		{"no filters", nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := col.Query(ctx, tt.filters...)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(docs) != tt.want {
				t.Errorf("expected %d docs, got %d", tt.want, len(docs))
			}
		})
	}
}

func TestStoredDocsAreIsolated(t *testing.T) {
	ctx := context.Background()
	col := NewStore().Collection("documents")

	doc := docstore.Doc{"tags": []string{"a"}}
	_ = col.Set(ctx, "d1", doc)
	doc["tags"].([]string)[0] = "mutated"

	got, _ := col.Get(ctx, "d1")
	if got["tags"].([]string)[0] != "a" {
		t.Error("stored document was mutated through the caller's copy")
	}
}

func TestApplyBatchAtomicOnConflict(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	col := store.Collection("documents")
	_ = col.Set(ctx, "existing", docstore.Doc{"v": "old"})

	ops := []docstore.WriteOp{
		{Kind: docstore.OpSet, Collection: "documents", ID: "new-1", Doc: docstore.Doc{"v": "1"}},
		{Kind: docstore.OpCreate, Collection: "documents", ID: "existing", Doc: docstore.Doc{"v": "clash"}},
	}
	err := store.ApplyBatch(ctx, ops)
	if !errors.Is(err, docstore.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// Nothing from the failed batch was applied.
	if _, err := col.Get(ctx, "new-1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("failed batch partially applied")
	}
	got, _ := col.Get(ctx, "existing")
	if got["v"] != "old" {
		t.Errorf("existing doc overwritten: %v", got["v"])
	}
}

func TestApplyBatchMixedOps(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	col := store.Collection("documents")
	_ = col.Set(ctx, "gone", docstore.Doc{"v": "x"})

	ops := []docstore.WriteOp{
		{Kind: docstore.OpCreate, Collection: "documents", ID: "a", Doc: docstore.Doc{"v": "1"}},
		{Kind: docstore.OpSet, Collection: "documents", ID: "b", Doc: docstore.Doc{"v": "2"}},
		{Kind: docstore.OpDelete, Collection: "documents", ID: "gone"},
	}
	if err := store.ApplyBatch(ctx, ops); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if _, err := col.Get(ctx, "a"); err != nil {
		t.Errorf("create not applied: %v", err)
	}
	if _, err := col.Get(ctx, "b"); err != nil {
		t.Errorf("set not applied: %v", err)
	}
	if _, err := col.Get(ctx, "gone"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("delete not applied")
	}
}

func TestApplyBatchRejectsOversize(t *testing.T) {
	ops := make([]docstore.WriteOp, docstore.MaxBatchOps+1)
	for i := range ops {
		ops[i] = docstore.WriteOp{Kind: docstore.OpSet, Collection: "c", ID: "id", Doc: docstore.Doc{}}
	}
	if err := NewStore().ApplyBatch(context.Background(), ops); err == nil {
		t.Error("expected oversize batch to be rejected")
	}
}
