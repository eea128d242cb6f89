package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mzharov/finrecon/internal/batch"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/normalize"
	"github.com/mzharov/finrecon/internal/repo"
	"github.com/mzharov/finrecon/internal/transform"
)

// FetchFileStep ensures the file bytes are in memory, downloading from
// object storage when only a URI was provided, and opens the audit run.
type FetchFileStep struct {
	storage filestore.Storage
	now     func() time.Time
}

func (s *FetchFileStep) Execute(ctx context.Context, state *State) error {
	if state.Data == nil {
		if state.FileURI == "" {
			return fmt.Errorf("no file data or URI")
		}
		data, err := s.storage.Download(ctx, state.FileURI)
		if err != nil {
			return err
		}
		state.Data = data
	}
	state.FileHash = filestore.ContentHash(state.Data)
	state.Run = &domain.ImportRun{
		ID:        newRunID(),
		OwnerID:   state.OwnerID,
		Filename:  state.Filename,
		FileHash:  state.FileHash,
		Status:    domain.ImportRunning,
		StartedAt: s.now(),
	}
	return nil
}

// DuplicateCheckStep skips the import when a run over the same content
// already completed for this owner.
type DuplicateCheckStep struct {
	runs *repo.ImportRunRepo
	now  func() time.Time
}

func (s *DuplicateCheckStep) Execute(ctx context.Context, state *State) error {
	previous, err := s.runs.FindByFileHash(ctx, state.OwnerID, state.FileHash)
	if err != nil {
		return err
	}
	for _, run := range previous {
		if run.Status == domain.ImportCompleted || run.Status == domain.ImportPartial {
			state.Run.Status = domain.ImportSkipped
			state.Run.Warnings = append(state.Run.Warnings,
				fmt.Sprintf("duplicate of run %s (%s)", run.ID, run.Filename))
			state.Run.FinishedAt = s.now()
			return s.runs.Save(ctx, state.Run)
		}
	}
	return nil
}

// ReadTableStep parses the raw bytes into rows.
type ReadTableStep struct{}

func (s *ReadTableStep) Execute(ctx context.Context, state *State) error {
	table, err := importer.ReadTable(state.Filename, state.Data)
	if err != nil {
		return err
	}
	state.Table = &table
	return nil
}

// DetectFormatStep infers the column layout and prefers a stored template
// when one agrees with the detected headers.
type DetectFormatStep struct {
	templates *repo.TemplateRepo
}

func (s *DetectFormatStep) Execute(ctx context.Context, state *State) error {
	if state.Table == nil {
		return nil
	}
	df, err := importer.DetectFormat(*state.Table)
	if err != nil {
		return err
	}
	state.Format = df

	stored, err := s.templates.ListByOwner(ctx, state.OwnerID)
	if err != nil {
		return err
	}
	tpl, score := importer.MatchTemplate(df, state.Filename, stored)
	if tpl == nil {
		return nil
	}
	state.Template = tpl
	state.Run.TemplateID = tpl.ID
	state.Run.Warnings = append(state.Run.Warnings,
		fmt.Sprintf("matched template %q (%.2f)", tpl.Name, score))

	// The template's saved mappings override inference for the columns
	// it knows about.
	byHeader := make(map[string]importer.ImportTemplateColumn, len(tpl.Columns))
	for _, col := range tpl.Columns {
		byHeader[strings.ToLower(col.SourceColumn)] = col
	}
	for i, col := range state.Format.Columns {
		saved, ok := byHeader[strings.ToLower(col.SourceColumn)]
		if !ok {
			continue
		}
		state.Format.Columns[i].SuggestedField = saved.TargetField
		state.Format.Columns[i].Transform = saved.Transform
		state.Format.Columns[i].Confidence = 1.0
	}
	state.Format.TemplateID = tpl.ID
	return nil
}

// MapRowsStep applies each column's transform to every data row. A cell
// failure rejects its row with a recorded reason and moves on.
type MapRowsStep struct{}

func (s *MapRowsStep) Execute(ctx context.Context, state *State) error {
	if state.Format == nil {
		return nil
	}
	for rowIdx := state.Format.DataStartRow; rowIdx < len(state.Table.Rows); rowIdx++ {
		row := state.Table.Rows[rowIdx]
		if blankRow(row) {
			continue
		}
		state.Run.RowsTotal++

		mapped := make(normalize.MappedRow)
		failed := false
		for _, col := range state.Format.Columns {
			if col.SuggestedField == "" || col.Index >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[col.Index])
			if raw == "" {
				continue
			}
			value, err := transform.Apply(col.Transform, raw)
			if err != nil {
				state.Run.RowErrors = append(state.Run.RowErrors, domain.RowError{
					Row:     rowIdx,
					Field:   col.SuggestedField,
					Message: err.Error(),
				})
				state.Run.RowsFailed++
				failed = true
				break
			}
			mapped[col.SuggestedField] = value
		}
		if failed {
			continue
		}
		state.Rows = append(state.Rows, mapped)
		state.RowOrigin = append(state.RowOrigin, rowIdx)
	}
	return nil
}

// NormalizeStep assembles canonical documents from the mapped rows.
// Row-level validation failures count against the run; warnings carry
// through to the result.
type NormalizeStep struct {
	homeCurrency string
	now          func() time.Time
}

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	now := s.now()
	for i, row := range state.Rows {
		opts := normalize.Options{
			// Deterministic per file content and position, so a retried
			// import overwrites instead of duplicating.
			ID:           fmt.Sprintf("%s_doc_%.12s_r%d", state.OwnerID, state.FileHash, state.RowOrigin[i]),
			OwnerID:      state.OwnerID,
			Direction:    state.Direction,
			DocumentType: state.DocumentType,
			HomeCurrency: s.homeCurrency,
			Now:          now,
		}
		doc, warnings, err := normalize.Document(row, opts)
		if err != nil {
			state.Run.RowErrors = append(state.Run.RowErrors, domain.RowError{
				Row:     state.RowOrigin[i],
				Message: err.Error(),
			})
			state.Run.RowsFailed++
			continue
		}
		for _, w := range warnings {
			state.Run.Warnings = append(state.Run.Warnings,
				fmt.Sprintf("row %d: %s: %s", state.RowOrigin[i], w.Field, w.Message))
		}
		state.Documents = append(state.Documents, doc)
	}
	return nil
}

// PersistStep writes the documents through the batch writer.
type PersistStep struct {
	documents *repo.DocumentRepo
	writer    *batch.Writer
}

func (s *PersistStep) Execute(ctx context.Context, state *State) error {
	if len(state.Documents) == 0 {
		return nil
	}
	ops := make([]docstore.WriteOp, 0, len(state.Documents))
	for _, doc := range state.Documents {
		ops = append(ops, s.documents.SetOp(doc))
	}
	committed, err := s.writer.Commit(ctx, ops)
	state.Run.RowsImported = committed
	return err
}

// FinalizeStep closes the audit run and folds usage stats into the
// matched template.
type FinalizeStep struct {
	runs      *repo.ImportRunRepo
	templates *repo.TemplateRepo
	now       func() time.Time
}

func (s *FinalizeStep) Execute(ctx context.Context, state *State) error {
	run := state.Run
	switch {
	case run.RowsImported == 0 && run.RowsTotal > 0:
		run.Status = domain.ImportFailed
	case run.RowsFailed > 0:
		run.Status = domain.ImportPartial
	default:
		run.Status = domain.ImportCompleted
	}
	run.FinishedAt = s.now()
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}

	if state.Template != nil {
		state.Template.RecordUsage(run.RowsImported, run.RowsTotal)
		state.Template.UpdatedAt = run.FinishedAt
		if err := s.templates.Save(ctx, state.Template); err != nil {
			return err
		}
	}
	return nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
