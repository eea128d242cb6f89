package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/mzharov/finrecon/internal/worker"
)

func main() {
	workers := flag.Int("workers", 4, "task workers")
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
		log.Warn().Msg("GOOGLE_CLOUD_PROJECT not set - using in-memory store")
		store = inmemory.NewStore()
	}

	limiter := ratelimit.NewRollingWindow(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	matching := reconcile.DefaultConfig()
	matching.AcceptanceThreshold = cfg.AcceptanceThreshold
	matching.DateWindowDays = cfg.DateWindowDays

	handler := worker.Handler(worker.Deps{
		Store:        store,
		Storage:      filestore.NewGCS(cfg.GCSBucket),
		Extractor:    extraction.NewClient(cfg.GeminiModel, limiter, cfg.ExtractionTimeout),
		Matching:     matching,
		HomeCurrency: cfg.HomeCurrency,
	})

	// In production the queue would be Cloud Tasks or Pub/Sub; the
	// in-memory queue serves single-process deployments.
	taskStore := jobsmem.NewTaskStore()
	queue := jobsmem.NewQueue(100, *workers, taskStore)

	workerCtx, cancel := context.WithCancel(logger.WithContext(ctx, log))
	defer cancel()

	if err := queue.Start(workerCtx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start task workers")
	}
	log.Info().Int("workers", *workers).Msg("Worker service started, waiting for tasks")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service")
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 30*time.Second)
	defer cancelShutdown()
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown failed")
	}
}
