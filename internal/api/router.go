// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mzharov/finrecon/internal/api/handlers"
	"github.com/mzharov/finrecon/internal/api/middleware"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/jobs"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/reporting"
)

// Deps holds everything the router needs.
type Deps struct {
	Store     docstore.Store
	Storage   filestore.Storage
	Publisher jobs.Publisher
	Tasks     jobs.Store
	Matching  reconcile.Config
	// Exporter may be nil when BigQuery export is not configured.
	Exporter *reporting.Exporter
	Log      zerolog.Logger
}

// NewRouter builds the API router with all endpoints and middleware.
func NewRouter(deps Deps) http.Handler {
	files := handlers.NewFilesHandler(deps.Storage, deps.Store, deps.Log)
	imports := handlers.NewImportsHandler(deps.Publisher, deps.Store, deps.Log)
	documents := handlers.NewDocumentsHandler(deps.Store, deps.Matching, deps.Log)
	transactions := handlers.NewTransactionsHandler(deps.Store, deps.Log)
	recon := handlers.NewReconcileHandler(deps.Store, deps.Publisher, deps.Matching, deps.Log)
	sessions := handlers.NewSessionsHandler(deps.Store, deps.Publisher, deps.Log)
	reports := handlers.NewReportsHandler(deps.Store, deps.Exporter, deps.Log)
	templates := handlers.NewTemplatesHandler(deps.Store, deps.Log)
	tasks := handlers.NewTasksHandler(deps.Tasks, deps.Log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Logger(deps.Log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/files/upload-url", files.CreateUploadURL)
		r.Post("/files/{id}/content", files.Upload)

		r.Post("/imports", imports.EnqueueImport)
		r.Get("/imports", imports.ListRuns)
		r.Post("/extractions", imports.EnqueueExtraction)

		r.Get("/documents", documents.ListDocuments)
		r.Get("/documents/{id}", documents.GetDocument)
		r.Get("/documents/{id}/candidates", documents.ListCandidates)

		r.Get("/transactions", transactions.ListTransactions)
		r.Post("/transactions", transactions.CreateTransaction)

		r.Post("/reconcile/run", recon.Run)
		r.Post("/matches/manual", recon.ManualMatch)
		r.Post("/matches/propose", recon.ProposeMatch)

		r.Post("/sessions", sessions.CreateSession)
		r.Get("/sessions/{id}", sessions.GetSession)
		r.Post("/sessions/{id}/reset", sessions.ResetSession)

		r.Get("/reports/aging", reports.Aging)

		r.Get("/templates", templates.ListTemplates)
		r.Post("/templates", templates.SaveTemplate)
		r.Delete("/templates/{id}", templates.DeleteTemplate)

		r.Get("/tasks", tasks.ListTasks)
		r.Get("/tasks/{id}", tasks.GetTask)
	})

	return r
}
