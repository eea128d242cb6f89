package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/extraction"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/normalize"
)

// ExtractClient is the document extraction service the pipeline consumes.
// *extraction.Client satisfies it; tests substitute a stub.
type ExtractClient interface {
	Extract(ctx context.Context, ownerID string, data []byte, mimeType string) (*extraction.Result, error)
}

// ImportExtracted imports an unstructured document (PDF, scan) through the
// extraction service. Extracted line tables flow through the same column
// detection and normalization as spreadsheet imports; header metadata fills
// document-level fields the table rows lack. A document with no line table
// still yields one canonical document built from its metadata.
func (p *Pipeline) ImportExtracted(ctx context.Context, client ExtractClient, ownerID string, direction domain.Direction, filename, fileURI, mimeType string, data []byte) (*Result, error) {
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
		&ExtractStep{client: client, mimeType: mimeType},
		&DetectFormatStep{templates: p.templates},
		&MapRowsStep{},
		&MetadataStep{},
		&NormalizeStep{homeCurrency: p.homeCurrency, now: p.now},
		&PersistStep{documents: p.documents, writer: p.writer},
		&FinalizeStep{runs: p.runs, templates: p.templates, now: p.now},
	}
	return p.run(ctx, state, steps)
}

// ExtractStep calls the extraction service and converts its line table, if
// any, into the tabular form the detection steps expect.
type ExtractStep struct {
	client   ExtractClient
	mimeType string
}

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	res, err := s.client.Extract(ctx, state.OwnerID, state.Data, s.mimeType)
	if err != nil {
		return err
	}
	if !res.IsExtractable {
		return fmt.Errorf("document is not extractable (%s)", strings.Join(res.Warnings, "; "))
	}

	state.DocumentType = res.DocumentType
	state.Metadata = res.Metadata
	for _, w := range res.Warnings {
		state.Run.Warnings = append(state.Run.Warnings, "extraction: "+w)
	}

	if len(res.Headers) > 0 && len(res.Rows) > 0 {
		rows := make([][]string, 0, len(res.Rows)+1)
		rows = append(rows, res.Headers)
		rows = append(rows, res.Rows...)
		state.Table = &importer.Table{Filename: state.Filename, Rows: rows}
	}
	return nil
}

// MetadataStep folds extracted header metadata into the mapped rows.
// Table rows win over metadata for fields they carry; documents without a
// line table become a single row built from metadata alone.
type MetadataStep struct{}

func (s *MetadataStep) Execute(ctx context.Context, state *State) error {
	defaults := make(normalize.MappedRow)
	for _, f := range state.Metadata {
		field := metadataTargetField(f.Label)
		if field == "" || f.Value == "" {
			continue
		}
		if _, ok := defaults[field]; ok {
			continue
		}
		defaults[field] = f.Value
	}

	if len(state.Rows) == 0 {
		if len(defaults) == 0 {
			return fmt.Errorf("extraction produced no line table and no usable metadata")
		}
		state.Rows = append(state.Rows, defaults)
		state.RowOrigin = append(state.RowOrigin, 0)
		state.Run.RowsTotal++
		return nil
	}

	for _, row := range state.Rows {
		for field, value := range defaults {
			if _, ok := row[field]; !ok {
				row[field] = value
			}
		}
	}
	return nil
}

// metadataTargetField maps an extracted metadata label to a canonical
// field name, reusing the importer's alias registry. Exact alias matches
// are preferred over containment so "due date" never lands on "date".
func metadataTargetField(label string) string {
	norm := normalizeLabel(label)
	if norm == "" {
		return ""
	}
	for _, f := range importer.TargetFields() {
		for _, alias := range f.Aliases {
			if norm == normalizeLabel(alias) {
				return f.Name
			}
		}
	}
	for _, f := range importer.TargetFields() {
		for _, alias := range f.Aliases {
			if strings.Contains(norm, normalizeLabel(alias)) {
				return f.Name
			}
		}
	}
	return ""
}

func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
