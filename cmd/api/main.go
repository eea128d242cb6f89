package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mzharov/finrecon/internal/api"
	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/docstore/firestoredb"
	"github.com/mzharov/finrecon/internal/docstore/inmemory"
	"github.com/mzharov/finrecon/internal/extraction"
	"github.com/mzharov/finrecon/internal/filestore"
	jobsmem "github.com/mzharov/finrecon/internal/jobs/inmemory"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/ratelimit"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/reporting"
	"github.com/mzharov/finrecon/internal/worker"
)

func main() {
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		workers = flag.Int("workers", 4, "in-process task workers")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	var store docstore.Store
	if cfg.ProjectID != "" {
		fs, err := firestoredb.New(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Firestore")
		}
		defer fs.Close()
		store = fs
	} else {
		log.Warn().Msg("GOOGLE_CLOUD_PROJECT not set - using in-memory store, data will not survive restarts")
		store = inmemory.NewStore()
	}

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - file uploads will fail")
	}
	storage := filestore.NewGCS(cfg.GCSBucket)

	limiter := ratelimit.NewRollingWindow(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	extractor := extraction.NewClient(cfg.GeminiModel, limiter, cfg.ExtractionTimeout)

	matching := reconcile.DefaultConfig()
	matching.AcceptanceThreshold = cfg.AcceptanceThreshold
	matching.DateWindowDays = cfg.DateWindowDays

	var exporter *reporting.Exporter
	if cfg.ProjectID != "" {
		exporter = reporting.NewExporter(cfg.ProjectID, cfg.BigQueryDataset, cfg.AgingReportTable)
	}

	taskStore := jobsmem.NewTaskStore()
	queue := jobsmem.NewQueue(100, *workers, taskStore)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	handler := worker.Handler(worker.Deps{
		Store:        store,
		Storage:      storage,
		Extractor:    extractor,
		Matching:     matching,
		HomeCurrency: cfg.HomeCurrency,
	})
	if err := queue.Start(workerCtx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start task workers")
	}

	router := api.NewRouter(api.Deps{
		Store:     store,
		Storage:   storage,
		Publisher: queue,
		Tasks:     taskStore,
		Matching:  matching,
		Exporter:  exporter,
		Log:       log,
	})

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown failed")
	}
}
