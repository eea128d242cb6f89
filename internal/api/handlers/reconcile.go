package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mzharov/finrecon/internal/api/middleware"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/jobs"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/repo"
	"github.com/mzharov/finrecon/internal/reporting"
)

// DocumentsHandler reads canonical documents.
type DocumentsHandler struct {
	store docstore.Store
	cfg   reconcile.Config
	log   zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(store docstore.Store, cfg reconcile.Config, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{store: store, cfg: cfg, log: log}
}

// ListDocuments handles GET /api/documents
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := repo.NewDocumentRepo(h.store, scopeFrom(r))

	var (
		result []*domain.CanonicalDocument
		err    error
	)
	if r.URL.Query().Get("open") == "true" {
		result, err = docs.ListOpen(r.Context(), ownerID(r))
	} else {
		result, err = docs.ListByOwner(r.Context(), ownerID(r))
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list documents")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"documents": result,
		"count":     len(result),
	})
}

// GetDocument handles GET /api/documents/{id}
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := repo.NewDocumentRepo(h.store, scopeFrom(r)).Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, doc)
}

// ListCandidates handles GET /api/documents/{id}/candidates
func (h *DocumentsHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	svc := reconcile.NewService(h.store, scopeFrom(r), h.cfg)
	proposals, err := svc.Candidates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"candidates": proposals,
		"count":      len(proposals),
	})
}

// TransactionsHandler reads and records bank transactions.
type TransactionsHandler struct {
	store docstore.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store docstore.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: store, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := repo.NewTransactionRepo(h.store, scopeFrom(r)).ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tx.ID == "" {
		tx.ID = "tx_" + uuid.NewString()
	}
	if tx.OwnerID == "" {
		tx.OwnerID = ownerID(r)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := tx.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := repo.NewTransactionRepo(h.store, scopeFrom(r)).Save(r.Context(), &tx); err != nil {
		h.log.Error().Err(err).Msg("Failed to save transaction")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, &tx)
}

// ReconcileHandler runs and applies matches.
type ReconcileHandler struct {
	store     docstore.Store
	publisher jobs.Publisher
	cfg       reconcile.Config
	log       zerolog.Logger
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(store docstore.Store, publisher jobs.Publisher, cfg reconcile.Config, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{store: store, publisher: publisher, cfg: cfg, log: log}
}

// Run handles POST /api/reconcile/run. The run executes asynchronously;
// poll the returned task for completion.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if r.Body != nil {
		// An empty body means a master-scope run.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner is required")
		return
	}

	task := &jobs.Task{
		ID:        uuid.NewString(),
		Type:      jobs.TaskTypeReconcile,
		OwnerID:   owner,
		SessionID: req.SessionID,
	}
	if err := h.publisher.Publish(r.Context(), task); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue reconciliation")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue reconciliation")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"taskId": task.ID})
}

// ManualMatch handles POST /api/matches/manual
func (h *ReconcileHandler) ManualMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID    string `json:"documentId"`
		TransactionID string `json:"transactionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentID == "" || req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "documentId and transactionId are required")
		return
	}

	svc := reconcile.NewService(h.store, scopeFrom(r), h.cfg)
	payment, err := svc.ManualMatch(r.Context(), req.DocumentID, req.TransactionID)
	if err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, payment)
}

// ProposeMatch handles POST /api/matches/propose
func (h *ReconcileHandler) ProposeMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID    string  `json:"documentId"`
		TransactionID string  `json:"transactionId"`
		Confidence    float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentID == "" || req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "documentId and transactionId are required")
		return
	}

	svc := reconcile.NewService(h.store, scopeFrom(r), h.cfg)
	payment, err := svc.ProposeMatch(r.Context(), req.DocumentID, req.TransactionID, req.Confidence)
	if err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, payment)
}

// SessionsHandler clones and resets replicated sessions.
type SessionsHandler struct {
	store     docstore.Store
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store docstore.Store, publisher jobs.Publisher, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{store: store, publisher: publisher, log: log}
}

// CreateSession handles POST /api/sessions
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	task := &jobs.Task{
		ID:        uuid.NewString(),
		Type:      jobs.TaskTypeClone,
		OwnerID:   owner,
		SessionID: req.SessionID,
	}
	if err := h.publisher.Publish(r.Context(), task); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue session clone")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue session clone")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"sessionId": req.SessionID,
		"taskId":    task.ID,
	})
}

// ResetSession handles POST /api/sessions/{id}/reset
func (h *SessionsHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	task := &jobs.Task{
		ID:        uuid.NewString(),
		Type:      jobs.TaskTypeReset,
		OwnerID:   ownerID(r),
		SessionID: sessionID,
	}
	if err := h.publisher.Publish(r.Context(), task); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue session reset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue session reset")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"sessionId": sessionID,
		"taskId":    task.ID,
	})
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Collection(repo.ColSessions).Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, record)
}

// ReportsHandler builds aging reports.
type ReportsHandler struct {
	store    docstore.Store
	exporter *reporting.Exporter
	log      zerolog.Logger
}

// NewReportsHandler creates a new reports handler. The exporter may be nil
// when BigQuery export is not configured.
func NewReportsHandler(store docstore.Store, exporter *reporting.Exporter, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{store: store, exporter: exporter, log: log}
}

// Aging handles GET /api/reports/aging
func (h *ReportsHandler) Aging(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner is required")
		return
	}
	direction := domain.Direction(r.URL.Query().Get("direction"))
	if !direction.IsValid() {
		direction = domain.DirectionOutgoing
	}
	asOf := time.Now().UTC()
	if s := r.URL.Query().Get("asOf"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid asOf date, expected YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	docs, err := repo.NewDocumentRepo(h.store, scopeFrom(r)).ListByOwner(r.Context(), owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load documents for aging report")
		middleware.WriteErrorFrom(w, err)
		return
	}
	report := reporting.BuildAging(owner, direction, docs, asOf)

	if r.URL.Query().Get("export") == "bigquery" {
		if h.exporter == nil {
			middleware.WriteError(w, http.StatusBadRequest, "BigQuery export is not configured")
			return
		}
		if err := h.exporter.Export(r.Context(), report); err != nil {
			h.log.Error().Err(err).Msg("Failed to export aging report")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to export aging report")
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// TemplatesHandler manages stored import templates.
type TemplatesHandler struct {
	store docstore.Store
	log   zerolog.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(store docstore.Store, log zerolog.Logger) *TemplatesHandler {
	return &TemplatesHandler{store: store, log: log}
}

// ListTemplates handles GET /api/templates
func (h *TemplatesHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := repo.NewTemplateRepo(h.store, scopeFrom(r)).ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list templates")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

// SaveTemplate handles POST /api/templates
func (h *TemplatesHandler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl importer.ImportTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tpl.Name == "" || len(tpl.Columns) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "name and columns are required")
		return
	}
	if tpl.ID == "" {
		tpl.ID = "tpl_" + uuid.NewString()
	}
	if tpl.OwnerID == "" {
		tpl.OwnerID = ownerID(r)
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	if err := repo.NewTemplateRepo(h.store, scopeFrom(r)).Save(r.Context(), &tpl); err != nil {
		h.log.Error().Err(err).Msg("Failed to save template")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, &tpl)
}

// DeleteTemplate handles DELETE /api/templates/{id}
func (h *TemplatesHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := repo.NewTemplateRepo(h.store, scopeFrom(r)).Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
