// Package worker dispatches queued tasks to the services that execute
// them. The same handler backs the API server's in-process worker pool and
// the standalone worker binary.
package worker

import (
	"context"
	"fmt"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/jobs"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/pipeline"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/replicator"
	"github.com/mzharov/finrecon/internal/repo"
)

// Deps holds the collaborators task execution needs.
type Deps struct {
	Store        docstore.Store
	Storage      filestore.Storage
	Extractor    pipeline.ExtractClient
	Matching     reconcile.Config
	HomeCurrency string
}

// Handler returns the jobs.Handler that executes every task type.
func Handler(deps Deps) jobs.Handler {
	return func(ctx context.Context, task *jobs.Task) error {
		log := logger.FromContext(ctx)
		log.Info().
			Str("task_id", task.ID).
			Str("type", string(task.Type)).
			Str("owner_id", task.OwnerID).
			Msg("processing task")

		switch task.Type {
		case jobs.TaskTypeImport:
			p := pipeline.New(deps.Storage, deps.Store, taskScope(task), deps.HomeCurrency)
			_, err := p.ImportFile(ctx, taskOwner(task), domain.Direction(task.Direction), task.Filename, task.FileURI, nil)
			return err

		case jobs.TaskTypeExtract:
			if deps.Extractor == nil {
				return fmt.Errorf("extraction is not configured")
			}
			p := pipeline.New(deps.Storage, deps.Store, taskScope(task), deps.HomeCurrency)
			_, err := p.ImportExtracted(ctx, deps.Extractor, taskOwner(task), domain.Direction(task.Direction), task.Filename, task.FileURI, task.MIMEType, nil)
			return err

		case jobs.TaskTypeReconcile:
			svc := reconcile.NewService(deps.Store, taskScope(task), deps.Matching)
			_, err := svc.Run(ctx, taskOwner(task))
			return err

		case jobs.TaskTypeClone:
			return replicator.New(deps.Store).Clone(ctx, task.OwnerID, task.SessionID)

		case jobs.TaskTypeReset:
			return replicator.New(deps.Store).Reset(ctx, task.SessionID)

		default:
			return fmt.Errorf("unknown task type %q", task.Type)
		}
	}
}

// taskScope selects the dataset the task operates on. Clone and reset
// manage session collections themselves and always run against the store
// directly.
func taskScope(task *jobs.Task) repo.Scope {
	if task.SessionID != "" {
		return repo.Session(task.SessionID)
	}
	return repo.Master
}

// taskOwner maps the task's owner into the scope it runs in: inside a
// session every owner id was rewritten during the clone.
func taskOwner(task *jobs.Task) string {
	if task.SessionID != "" {
		return replicator.SessionOwner(task.SessionID)
	}
	return task.OwnerID
}
