// Package pipeline orchestrates file imports end to end: fetch bytes,
// detect or match the column layout, transform and normalize rows, and
// persist the resulting documents. Row failures are collected, not fatal;
// one bad row never aborts a batch.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mzharov/finrecon/internal/batch"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/extraction"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/normalize"
	"github.com/mzharov/finrecon/internal/repo"
)

// Step is one stage of the import pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is the shared state threaded through the steps.
type State struct {
	OwnerID      string
	Direction    domain.Direction
	DocumentType string
	Filename     string
	FileURI      string
	Data         []byte
	FileHash     string

	Metadata []extraction.MetadataField

	Table    *importer.Table
	Format   *importer.DetectedFormat
	Template *importer.ImportTemplate

	Rows      []normalize.MappedRow
	RowOrigin []int // source row index per mapped row, for error reporting
	Documents []*domain.CanonicalDocument

	Run *domain.ImportRun
}

// Result summarizes one import for the caller.
type Result struct {
	RunID        string                 `json:"runId"`
	Status       domain.ImportRunStatus `json:"status"`
	RowsTotal    int                    `json:"rowsTotal"`
	RowsImported int                    `json:"rowsImported"`
	RowsFailed   int                    `json:"rowsFailed"`
	RowErrors    []domain.RowError      `json:"rowErrors,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
}

// Pipeline wires the import steps over one scope's repositories.
type Pipeline struct {
	storage      filestore.Storage
	store        docstore.Store
	writer       *batch.Writer
	documents    *repo.DocumentRepo
	templates    *repo.TemplateRepo
	runs         *repo.ImportRunRepo
	homeCurrency string
	now          func() time.Time
}

// New creates an import pipeline for the given scope.
func New(storage filestore.Storage, store docstore.Store, scope repo.Scope, homeCurrency string) *Pipeline {
	return &Pipeline{
		storage:      storage,
		store:        store,
		writer:       batch.NewWriter(store),
		documents:    repo.NewDocumentRepo(store, scope),
		templates:    repo.NewTemplateRepo(store, scope),
		runs:         repo.NewImportRunRepo(store, scope),
		homeCurrency: homeCurrency,
		now:          time.Now,
	}
}

// ImportFile runs the whole pipeline over an uploaded file. When data is
// nil the bytes are fetched from the state FileURI first.
func (p *Pipeline) ImportFile(ctx context.Context, ownerID string, direction domain.Direction, filename string, fileURI string, data []byte) (*Result, error) {
	state := &State{
		OwnerID:   ownerID,
		Direction: direction,
		Filename:  filename,
		FileURI:   fileURI,
		Data:      data,
	}
	steps := []Step{
		&FetchFileStep{storage: p.storage, now: p.now},
		&DuplicateCheckStep{runs: p.runs, now: p.now},
		&ReadTableStep{},
		&DetectFormatStep{templates: p.templates},
		&MapRowsStep{},
		&NormalizeStep{homeCurrency: p.homeCurrency, now: p.now},
		&PersistStep{documents: p.documents, writer: p.writer},
		&FinalizeStep{runs: p.runs, templates: p.templates, now: p.now},
	}
	return p.run(ctx, state, steps)
}

func (p *Pipeline) run(ctx context.Context, state *State, steps []Step) (*Result, error) {
	log := logger.FromContext(ctx)
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			if state.Run != nil {
				state.Run.Status = domain.ImportFailed
				state.Run.FinishedAt = p.now()
				if saveErr := p.runs.Save(ctx, state.Run); saveErr != nil {
					log.Error().Err(saveErr).Msg("failed to record failed import run")
				}
			}
			return nil, fmt.Errorf("import %s: %T: %w", state.Filename, step, err)
		}
		if state.Run != nil && state.Run.Status == domain.ImportSkipped {
			log.Info().Str("filename", state.Filename).Str("hash", state.FileHash).Msg("duplicate file, import skipped")
			return resultFrom(state.Run), nil
		}
	}

	log.Info().
		Str("filename", state.Filename).
		Int("imported", state.Run.RowsImported).
		Int("failed", state.Run.RowsFailed).
		Msg("file imported")
	return resultFrom(state.Run), nil
}

func resultFrom(run *domain.ImportRun) *Result {
	return &Result{
		RunID:        run.ID,
		Status:       run.Status,
		RowsTotal:    run.RowsTotal,
		RowsImported: run.RowsImported,
		RowsFailed:   run.RowsFailed,
		RowErrors:    run.RowErrors,
		Warnings:     run.Warnings,
	}
}

func newRunID() string {
	return "run_" + uuid.NewString()
}
