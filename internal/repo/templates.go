package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/transform"
)

// TemplateRepo stores import templates.
type TemplateRepo struct {
	store docstore.Store
	scope Scope
}

// NewTemplateRepo creates a template repository in the given scope.
func NewTemplateRepo(store docstore.Store, scope Scope) *TemplateRepo {
	return &TemplateRepo{store: store, scope: scope}
}

func (r *TemplateRepo) col() docstore.Collection {
	return r.store.Collection(r.scope.Col(ColTemplates))
}

// Save creates or overwrites the template.
func (r *TemplateRepo) Save(ctx context.Context, t *importer.ImportTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("Save: template has no id")
	}
	if err := r.col().Set(ctx, t.ID, templateToDoc(t)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Get loads one template by id.
func (r *TemplateRepo) Get(ctx context.Context, id string) (*importer.ImportTemplate, error) {
	raw, err := r.col().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return templateFromDoc(id, raw), nil
}

// ListByOwner returns the owner's templates sorted by id.
func (r *TemplateRepo) ListByOwner(ctx context.Context, ownerID string) ([]*importer.ImportTemplate, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "ownerId", Value: ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	templates := make([]*importer.ImportTemplate, 0, len(raws))
	for _, raw := range raws {
		templates = append(templates, templateFromDoc(getString(raw, "id"), raw))
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// Delete removes the template.
func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	if err := r.col().Delete(ctx, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func templateToDoc(t *importer.ImportTemplate) docstore.Doc {
	cols := make([]any, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, map[string]any{
			"sourceColumn": c.SourceColumn,
			"targetField":  c.TargetField,
			"transform":    transformToDoc(c.Transform),
			"required":     c.Required,
		})
	}
	return docstore.Doc{
		"id":              t.ID,
		"ownerId":         t.OwnerID,
		"name":            t.Name,
		"columns":         cols,
		"headerRow":       t.HeaderRow,
		"requiredHeaders": t.RequiredHeaders,
		"filenamePattern": t.FilenamePattern,
		"timesUsed":       t.TimesUsed,
		"successRate":     t.SuccessRate,
		"createdAt":       t.CreatedAt,
		"updatedAt":       t.UpdatedAt,
	}
}

func templateFromDoc(id string, raw docstore.Doc) *importer.ImportTemplate {
	t := &importer.ImportTemplate{
		ID:              id,
		OwnerID:         getString(raw, "ownerId"),
		Name:            getString(raw, "name"),
		HeaderRow:       getInt(raw, "headerRow"),
		RequiredHeaders: getStrings(raw, "requiredHeaders"),
		FilenamePattern: getString(raw, "filenamePattern"),
		TimesUsed:       getInt(raw, "timesUsed"),
		SuccessRate:     getFloat(raw, "successRate"),
		CreatedAt:       getTime(raw, "createdAt"),
		UpdatedAt:       getTime(raw, "updatedAt"),
	}
	if cols, ok := raw["columns"].([]any); ok {
		for _, col := range cols {
			m, ok := col.(map[string]any)
			if !ok {
				continue
			}
			t.Columns = append(t.Columns, importer.ImportTemplateColumn{
				SourceColumn: getString(m, "sourceColumn"),
				TargetField:  getString(m, "targetField"),
				Transform:    transformFromDoc(m["transform"]),
				Required:     m["required"] == true,
			})
		}
	}
	return t
}

func transformToDoc(t transform.Transform) map[string]any {
	doc := map[string]any{"kind": string(t.Kind)}
	if t.DateFormat != "" {
		doc["dateFormat"] = t.DateFormat
	}
	if t.ThousandsSep != "" {
		doc["thousandsSep"] = t.ThousandsSep
	}
	if t.DecimalSep != "" {
		doc["decimalSep"] = t.DecimalSep
	}
	if t.Symbol != "" {
		doc["symbol"] = t.Symbol
	}
	if t.Delimiter != "" {
		doc["delimiter"] = t.Delimiter
	}
	if t.Index != 0 {
		doc["index"] = t.Index
	}
	if t.Pattern != "" {
		doc["pattern"] = t.Pattern
	}
	if t.Group != 0 {
		doc["group"] = t.Group
	}
	if len(t.Table) > 0 {
		table := make(map[string]any, len(t.Table))
		for k, v := range t.Table {
			table[k] = v
		}
		doc["table"] = table
	}
	return doc
}

func transformFromDoc(v any) transform.Transform {
	m, ok := v.(map[string]any)
	if !ok {
		return transform.Transform{Kind: transform.KindNone}
	}
	t := transform.Transform{
		Kind:         transform.Kind(getString(m, "kind")),
		DateFormat:   getString(m, "dateFormat"),
		ThousandsSep: getString(m, "thousandsSep"),
		DecimalSep:   getString(m, "decimalSep"),
		Symbol:       getString(m, "symbol"),
		Delimiter:    getString(m, "delimiter"),
		Index:        getInt(m, "index"),
		Pattern:      getString(m, "pattern"),
		Group:        getInt(m, "group"),
	}
	if table, ok := m["table"].(map[string]any); ok {
		t.Table = make(map[string]string, len(table))
		for k, val := range table {
			if s, ok := val.(string); ok {
				t.Table[k] = s
			}
		}
	}
	return t
}
