package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
)

// ImportRunRepo stores import audit records.
type ImportRunRepo struct {
	store docstore.Store
	scope Scope
}

// NewImportRunRepo creates an import run repository in the given scope.
func NewImportRunRepo(store docstore.Store, scope Scope) *ImportRunRepo {
	return &ImportRunRepo{store: store, scope: scope}
}

func (r *ImportRunRepo) col() docstore.Collection {
	return r.store.Collection(r.scope.Col(ColImportRuns))
}

// Save creates or overwrites the run record.
func (r *ImportRunRepo) Save(ctx context.Context, run *domain.ImportRun) error {
	if run.ID == "" {
		return fmt.Errorf("Save: import run has no id")
	}
	if err := r.col().Set(ctx, run.ID, importRunToDoc(run)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Get loads one run by id.
func (r *ImportRunRepo) Get(ctx context.Context, id string) (*domain.ImportRun, error) {
	raw, err := r.col().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return importRunFromDoc(id, raw), nil
}

// FindByFileHash returns the owner's runs with the given content hash.
// Used for duplicate file detection before an import starts.
func (r *ImportRunRepo) FindByFileHash(ctx context.Context, ownerID, fileHash string) ([]*domain.ImportRun, error) {
	raws, err := r.col().Query(ctx,
		docstore.Filter{Field: "ownerId", Value: ownerID},
		docstore.Filter{Field: "fileHash", Value: fileHash},
	)
	if err != nil {
		return nil, fmt.Errorf("FindByFileHash: %w", err)
	}
	return importRunsFromDocs(raws), nil
}

// ListByOwner returns the owner's runs sorted by id.
func (r *ImportRunRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.ImportRun, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "ownerId", Value: ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	return importRunsFromDocs(raws), nil
}

func importRunsFromDocs(raws []docstore.Doc) []*domain.ImportRun {
	runs := make([]*domain.ImportRun, 0, len(raws))
	for _, raw := range raws {
		runs = append(runs, importRunFromDoc(getString(raw, "id"), raw))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs
}

func importRunToDoc(run *domain.ImportRun) docstore.Doc {
	rowErrors := make([]any, 0, len(run.RowErrors))
	for _, re := range run.RowErrors {
		rowErrors = append(rowErrors, map[string]any{
			"row":     re.Row,
			"field":   re.Field,
			"message": re.Message,
		})
	}
	return docstore.Doc{
		"id":           run.ID,
		"ownerId":      run.OwnerID,
		"filename":     run.Filename,
		"fileHash":     run.FileHash,
		"templateId":   run.TemplateID,
		"status":       string(run.Status),
		"rowsTotal":    run.RowsTotal,
		"rowsImported": run.RowsImported,
		"rowsFailed":   run.RowsFailed,
		"rowErrors":    rowErrors,
		"warnings":     run.Warnings,
		"startedAt":    run.StartedAt,
		"finishedAt":   run.FinishedAt,
	}
}

func importRunFromDoc(id string, raw docstore.Doc) *domain.ImportRun {
	run := &domain.ImportRun{
		ID:           id,
		OwnerID:      getString(raw, "ownerId"),
		Filename:     getString(raw, "filename"),
		FileHash:     getString(raw, "fileHash"),
		TemplateID:   getString(raw, "templateId"),
		Status:       domain.ImportRunStatus(getString(raw, "status")),
		RowsTotal:    getInt(raw, "rowsTotal"),
		RowsImported: getInt(raw, "rowsImported"),
		RowsFailed:   getInt(raw, "rowsFailed"),
		Warnings:     getStrings(raw, "warnings"),
		StartedAt:    getTime(raw, "startedAt"),
		FinishedAt:   getTime(raw, "finishedAt"),
	}
	if errs, ok := raw["rowErrors"].([]any); ok {
		for _, e := range errs {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			run.RowErrors = append(run.RowErrors, domain.RowError{
				Row:     getInt(m, "row"),
				Field:   getString(m, "field"),
				Message: getString(m, "message"),
			})
		}
	}
	return run
}
