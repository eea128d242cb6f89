// Package handlers implements the HTTP endpoints of the reconciliation
// service. Handlers stay thin: decode, delegate to a service or repository,
// encode. Long-running work (imports, extraction, reconciliation runs,
// session clones) is published to the task queue and polled via /api/tasks.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mzharov/finrecon/internal/api/middleware"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/jobs"
	"github.com/mzharov/finrecon/internal/repo"
)

// ownerID resolves the calling owner from the X-Owner-ID header or the
// owner query parameter.
func ownerID(r *http.Request) string {
	if id := r.Header.Get("X-Owner-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("owner")
}

// scopeFrom selects the master dataset or a replicated session based on
// the session query parameter.
func scopeFrom(r *http.Request) repo.Scope {
	if id := r.URL.Query().Get("session"); id != "" {
		return repo.Session(id)
	}
	return repo.Master
}

// FilesHandler handles file upload endpoints.
type FilesHandler struct {
	storage filestore.Storage
	store   docstore.Store
	log     zerolog.Logger
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(storage filestore.Storage, store docstore.Store, log zerolog.Logger) *FilesHandler {
	return &FilesHandler{storage: storage, store: store, log: log}
}

// CreateUploadURL handles POST /api/files/upload-url
func (h *FilesHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}

	fileID := uuid.NewString()
	objectName := fmt.Sprintf("uploads/%s/%s", time.Now().Format("2006/01/02"), fileID+"-"+req.Filename)
	uploadURL := fmt.Sprintf("/api/files/%s/content?object_name=%s&filename=%s",
		fileID, url.QueryEscape(objectName), url.QueryEscape(req.Filename))

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"fileId":     fileID,
		"objectName": objectName,
		"uploadUrl":  uploadURL,
	})
}

// Upload handles POST /api/files/{id}/content
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	objectName := r.URL.Query().Get("object_name")
	if objectName == "" {
		middleware.WriteError(w, http.StatusBadRequest, "object_name is required")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty file")
		return
	}

	uri, err := h.storage.Upload(ctx, objectName, data, contentType)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upload file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = filepath.Base(objectName)
	}
	if idx := strings.Index(filename, "?"); idx > 0 {
		filename = filename[:idx]
	}
	filename = filepath.Base(filename)

	record := map[string]any{
		"id":         fileID,
		"ownerId":    ownerID(r),
		"filename":   filename,
		"uri":        uri,
		"mimeType":   contentType,
		"sizeBytes":  len(data),
		"hash":       filestore.ContentHash(data),
		"uploadedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.Collection(repo.ColFiles).Set(ctx, fileID, record); err != nil {
		h.log.Error().Err(err).Msg("Failed to save file record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save file record")
		return
	}

	h.log.Info().
		Str("file_id", fileID).
		Str("uri", uri).
		Int("bytes", len(data)).
		Msg("File uploaded")

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"fileId": fileID,
		"uri":    uri,
		"hash":   record["hash"],
	})
}

// ImportsHandler enqueues import and extraction tasks and exposes run
// history.
type ImportsHandler struct {
	publisher jobs.Publisher
	store     docstore.Store
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(publisher jobs.Publisher, store docstore.Store, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{publisher: publisher, store: store, log: log}
}

// EnqueueImport handles POST /api/imports
func (h *ImportsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.TaskTypeImport)
}

// EnqueueExtraction handles POST /api/extractions
func (h *ImportsHandler) EnqueueExtraction(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.TaskTypeExtract)
}

func (h *ImportsHandler) enqueue(w http.ResponseWriter, r *http.Request, taskType jobs.TaskType) {
	var req struct {
		FileURI   string `json:"fileUri"`
		Filename  string `json:"filename"`
		Direction string `json:"direction"`
		MIMEType  string `json:"mimeType"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner is required")
		return
	}
	if req.FileURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "fileUri is required")
		return
	}
	if !domain.Direction(req.Direction).IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "direction must be incoming or outgoing")
		return
	}

	task := &jobs.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		OwnerID:   owner,
		FileURI:   req.FileURI,
		Filename:  req.Filename,
		Direction: req.Direction,
		MIMEType:  req.MIMEType,
		SessionID: req.SessionID,
	}
	if err := h.publisher.Publish(r.Context(), task); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue task")
		return
	}

	h.log.Info().Str("task_id", task.ID).Str("type", string(taskType)).Msg("Task enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"taskId": task.ID,
		"status": string(task.Status),
	})
}

// ListRuns handles GET /api/imports
func (h *ImportsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := repo.NewImportRunRepo(h.store, scopeFrom(r)).ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list import runs")
		middleware.WriteErrorFrom(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// TasksHandler exposes task status.
type TasksHandler struct {
	store jobs.Store
	log   zerolog.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(store jobs.Store, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{store: store, log: log}
}

// GetTask handles GET /api/tasks/{id}
func (h *TasksHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Task not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /api/tasks
func (h *TasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.Filter{
		OwnerID: ownerID(r),
		Type:    jobs.TaskType(query.Get("type")),
		Status:  jobs.TaskStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tasks")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}
