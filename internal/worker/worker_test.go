package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzharov/finrecon/internal/docstore/inmemory"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/jobs"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/replicator"
	"github.com/mzharov/finrecon/internal/repo"
)

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.objects["gs://test/"+objectName] = data
	return "gs://test/" + objectName, nil
}

func (m *memStorage) Download(ctx context.Context, uri string) ([]byte, error) {
	data, ok := m.objects[uri]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return data, nil
}

func seedMaster(t *testing.T, store *inmemory.Store) {
	t.Helper()
	ctx := context.Background()
	total := decimal.RequireFromString("900.00")
	doc := &domain.CanonicalDocument{
		ID:                   "org_1_inv_1",
		OwnerID:              "org_1",
		Direction:            domain.DirectionOutgoing,
		DocumentType:         "invoice",
		CounterpartyName:     "Acme Corp",
		DocumentDate:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:              time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Total:                total,
		Currency:             "USD",
		PaymentStatus:        domain.PaymentUnpaid,
		AmountRemaining:      total,
		ReconciliationStatus: domain.ReconUnmatched,
	}
	require.NoError(t, repo.NewDocumentRepo(store, repo.Master).Save(ctx, doc))
	tx := &domain.Transaction{
		ID:           "org_1_tx_1",
		OwnerID:      "org_1",
		Type:         domain.TransactionCredit,
		Amount:       total,
		Currency:     "USD",
		Date:         time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		Counterparty: "Acme Corp",
	}
	require.NoError(t, repo.NewTransactionRepo(store, repo.Master).Save(ctx, tx))
}

func TestHandler_ImportTask(t *testing.T) {
	store := inmemory.NewStore()
	storage := &memStorage{objects: map[string][]byte{}}
	csv := "Customer Name,Invoice Date,Total,Currency\nAcme Corp,2024-01-15,100.00,USD\n"
	uri, err := storage.Upload(context.Background(), "uploads/a.csv", []byte(csv), "text/csv")
	require.NoError(t, err)

	handler := Handler(Deps{
		Store:        store,
		Storage:      storage,
		Matching:     reconcile.DefaultConfig(),
		HomeCurrency: "USD",
	})
	err = handler(context.Background(), &jobs.Task{
		ID:        "task1",
		Type:      jobs.TaskTypeImport,
		OwnerID:   "org_1",
		FileURI:   uri,
		Filename:  "a.csv",
		Direction: "outgoing",
	})
	require.NoError(t, err)

	docs, err := repo.NewDocumentRepo(store, repo.Master).ListByOwner(context.Background(), "org_1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Acme Corp", docs[0].CounterpartyName)
}

func TestHandler_CloneThenReconcileSession(t *testing.T) {
	store := inmemory.NewStore()
	seedMaster(t, store)

	handler := Handler(Deps{
		Store:        store,
		Storage:      &memStorage{objects: map[string][]byte{}},
		Matching:     reconcile.DefaultConfig(),
		HomeCurrency: "USD",
	})
	ctx := context.Background()

	err := handler(ctx, &jobs.Task{
		ID:        "task1",
		Type:      jobs.TaskTypeClone,
		OwnerID:   "org_1",
		SessionID: "s1",
	})
	require.NoError(t, err)

	sessionOwner := replicator.SessionOwner("s1")
	scope := repo.Session("s1")
	docs, err := repo.NewDocumentRepo(store, scope).ListByOwner(ctx, sessionOwner)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	err = handler(ctx, &jobs.Task{
		ID:        "task2",
		Type:      jobs.TaskTypeReconcile,
		OwnerID:   "org_1",
		SessionID: "s1",
	})
	require.NoError(t, err)

	payments, err := repo.NewPaymentRepo(store, scope).ListByOwner(ctx, sessionOwner)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	// The master dataset is untouched.
	masterPayments, err := repo.NewPaymentRepo(store, repo.Master).ListByOwner(ctx, "org_1")
	require.NoError(t, err)
	assert.Empty(t, masterPayments)
}

func TestHandler_ResetSession(t *testing.T) {
	store := inmemory.NewStore()
	seedMaster(t, store)
	ctx := context.Background()

	handler := Handler(Deps{
		Store:        store,
		Storage:      &memStorage{objects: map[string][]byte{}},
		Matching:     reconcile.DefaultConfig(),
		HomeCurrency: "USD",
	})

	require.NoError(t, handler(ctx, &jobs.Task{Type: jobs.TaskTypeClone, OwnerID: "org_1", SessionID: "s1"}))
	require.NoError(t, handler(ctx, &jobs.Task{Type: jobs.TaskTypeReconcile, OwnerID: "org_1", SessionID: "s1"}))
	require.NoError(t, handler(ctx, &jobs.Task{Type: jobs.TaskTypeReset, SessionID: "s1"}))

	scope := repo.Session("s1")
	payments, err := repo.NewPaymentRepo(store, scope).ListByOwner(ctx, replicator.SessionOwner("s1"))
	require.NoError(t, err)
	assert.Empty(t, payments)

	docs, err := repo.NewDocumentRepo(store, scope).ListByOwner(ctx, replicator.SessionOwner("s1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.ReconUnmatched, docs[0].ReconciliationStatus)
	assert.True(t, docs[0].AmountRemaining.Equal(docs[0].Total))
}

func TestHandler_UnknownType(t *testing.T) {
	handler := Handler(Deps{Store: inmemory.NewStore()})
	err := handler(context.Background(), &jobs.Task{Type: "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}
