package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzharov/finrecon/internal/docstore/inmemory"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/jobs"
	jobsmem "github.com/mzharov/finrecon/internal/jobs/inmemory"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/repo"
)

type recordingPublisher struct {
	tasks []*jobs.Task
}

func (p *recordingPublisher) Publish(ctx context.Context, task *jobs.Task) error {
	task.Status = jobs.TaskPending
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type nullStorage struct{}

func (nullStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	return "gs://test/" + objectName, nil
}

func (nullStorage) Download(ctx context.Context, uri string) ([]byte, error) {
	return nil, fmt.Errorf("not found: %s", uri)
}

func testRouter(t *testing.T) (http.Handler, *inmemory.Store, *recordingPublisher) {
	t.Helper()
	store := inmemory.NewStore()
	publisher := &recordingPublisher{}
	router := NewRouter(Deps{
		Store:     store,
		Storage:   nullStorage{},
		Publisher: publisher,
		Tasks:     jobsmem.NewTaskStore(),
		Matching:  reconcile.DefaultConfig(),
		Log:       zerolog.Nop(),
	})
	return router, store, publisher
}

func seedMatchPair(t *testing.T, store *inmemory.Store) {
	t.Helper()
	ctx := context.Background()
	total := decimal.RequireFromString("500.00")
	doc := &domain.CanonicalDocument{
		ID:                   "d1",
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
		ID:           "t1",
		OwnerID:      "org_1",
		Type:         domain.TransactionCredit,
		Amount:       total,
		Currency:     "USD",
		Date:         time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		Counterparty: "Acme Corp",
	}
	require.NoError(t, repo.NewTransactionRepo(store, repo.Master).Save(ctx, tx))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Owner-ID", "org_1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _, _ := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndListTransactions(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/transactions", map[string]any{
		"type":         "credit",
		"amount":       "250.00",
		"currency":     "USD",
		"date":         "2024-05-20T00:00:00Z",
		"counterparty": "Globex",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestCreateTransaction_InvalidRejected(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/transactions", map[string]any{
		"type":     "sideways",
		"amount":   "10.00",
		"currency": "USD",
		"date":     "2024-05-20T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualMatchFlow(t *testing.T) {
	router, store, _ := testRouter(t)
	seedMatchPair(t, store)

	body := map[string]string{"documentId": "d1", "transactionId": "t1"}
	rec := doJSON(t, router, http.MethodPost, "/api/matches/manual", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var payment domain.PaymentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))
	assert.Equal(t, "pay_d1_t1", payment.ID)
	assert.Equal(t, domain.MatchManual, payment.Source)

	// The transaction is consumed: matching it again conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/matches/manual", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProposeMatch_BelowThreshold(t *testing.T) {
	router, store, _ := testRouter(t)
	seedMatchPair(t, store)

	rec := doJSON(t, router, http.MethodPost, "/api/matches/propose", map[string]any{
		"documentId":    "d1",
		"transactionId": "t1",
		"confidence":    0.2,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReconcileRun_EnqueuesTask(t *testing.T) {
	router, _, publisher := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/reconcile/run", map[string]string{})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, publisher.tasks, 1)
	assert.Equal(t, jobs.TaskTypeReconcile, publisher.tasks[0].Type)
	assert.Equal(t, "org_1", publisher.tasks[0].OwnerID)
}

func TestEnqueueImport_RequiresDirection(t *testing.T) {
	router, _, publisher := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/imports", map[string]string{
		"fileUri":  "gs://test/uploads/x.csv",
		"filename": "x.csv",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, publisher.tasks)

	rec = doJSON(t, router, http.MethodPost, "/api/imports", map[string]string{
		"fileUri":   "gs://test/uploads/x.csv",
		"filename":  "x.csv",
		"direction": "outgoing",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, publisher.tasks, 1)
	assert.Equal(t, jobs.TaskTypeImport, publisher.tasks[0].Type)
}

func TestGetDocument_NotFound(t *testing.T) {
	router, _, _ := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/documents/absent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgingReport(t *testing.T) {
	router, store, _ := testRouter(t)
	seedMatchPair(t, store)

	rec := doJSON(t, router, http.MethodGet, "/api/reports/aging?direction=outgoing&asOf=2024-07-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Lines []struct {
			Counterparty string `json:"counterparty"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "Acme Corp", report.Lines[0].Counterparty)
}

func TestUploadFlow(t *testing.T) {
	router, store, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/files/upload-url", map[string]string{
		"filename": "invoices.csv",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		FileID    string `json:"fileId"`
		UploadURL string `json:"uploadUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.UploadURL)

	req := httptest.NewRequest(http.MethodPost, created.UploadURL, bytes.NewBufferString("a,b\n1,2\n"))
	req.Header.Set("X-Owner-ID", "org_1")
	req.Header.Set("Content-Type", "text/csv")
	upload := httptest.NewRecorder()
	router.ServeHTTP(upload, req)
	require.Equal(t, http.StatusOK, upload.Code, upload.Body.String())

	record, err := store.Collection(repo.ColFiles).Get(context.Background(), created.FileID)
	require.NoError(t, err)
	assert.Equal(t, "invoices.csv", record["filename"])
}
