package importer

import (
	"regexp"
	"time"

	"github.com/mzharov/finrecon/internal/transform"
)

// templateMatchThreshold is the minimum header agreement for a stored
// template to be reused. Below it, the caller must create a new template.
const templateMatchThreshold = 0.6

// ImportTemplateColumn maps one source column to a canonical field.
type ImportTemplateColumn struct {
	SourceColumn string              `json:"sourceColumn" firestore:"sourceColumn"`
	TargetField  string              `json:"targetField" firestore:"targetField"`
	Transform    transform.Transform `json:"transform" firestore:"transform"`
	Required     bool                `json:"required" firestore:"required"`
}

// ImportTemplate is a saved, reusable column mapping for a recurring file
// format, with detection patterns and usage statistics.
type ImportTemplate struct {
	ID      string                 `json:"id" firestore:"id"`
	OwnerID string                 `json:"ownerId" firestore:"ownerId"`
	Name    string                 `json:"name" firestore:"name"`
	Columns []ImportTemplateColumn `json:"columns" firestore:"columns"`

	// Detection patterns
	HeaderRow       int      `json:"headerRow" firestore:"headerRow"`
	RequiredHeaders []string `json:"requiredHeaders" firestore:"requiredHeaders"`
	FilenamePattern string   `json:"filenamePattern,omitempty" firestore:"filenamePattern,omitempty"`

	// Usage statistics
	TimesUsed   int     `json:"timesUsed" firestore:"timesUsed"`
	SuccessRate float64 `json:"successRate" firestore:"successRate"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// RecordUsage folds one import run's row success rate into the template's
// statistics as a running average.
func (t *ImportTemplate) RecordUsage(succeeded, total int) {
	if total == 0 {
		return
	}
	runRate := float64(succeeded) / float64(total)
	t.SuccessRate = (t.SuccessRate*float64(t.TimesUsed) + runRate) / float64(t.TimesUsed+1)
	t.TimesUsed++
}

// MatchTemplate selects the stored template with the highest fraction of
// header-name/position agreement against the detected format. It returns
// nil when no template reaches the minimum confidence.
func MatchTemplate(df *DetectedFormat, filename string, stored []*ImportTemplate) (*ImportTemplate, float64) {
	var best *ImportTemplate
	bestScore := 0.0

	for _, tpl := range stored {
		score := templateAgreement(df, tpl)
		if tpl.FilenamePattern != "" {
			if re, err := regexp.Compile(tpl.FilenamePattern); err == nil && re.MatchString(filename) {
				// Filename vendor match is strong corroboration.
				score = score*0.8 + 0.2
			}
		}
		if score > bestScore {
			bestScore = score
			best = tpl
		}
	}

	if best == nil || bestScore < templateMatchThreshold {
		return nil, bestScore
	}
	return best, bestScore
}

// templateAgreement is the fraction of template columns whose source header
// appears in the detected format, with a bonus when the position also lines
// up.
func templateAgreement(df *DetectedFormat, tpl *ImportTemplate) float64 {
	if len(tpl.Columns) == 0 {
		return 0
	}

	byName := make(map[string]int, len(df.Columns))
	for _, c := range df.Columns {
		byName[normalizeHeader(c.SourceColumn)] = c.Index
	}

	score := 0.0
	for i, col := range tpl.Columns {
		idx, ok := byName[normalizeHeader(col.SourceColumn)]
		if !ok {
			continue
		}
		if idx == i {
			score += 1.0
		} else {
			score += 0.75
		}
	}
	return score / float64(len(tpl.Columns))
}

// TemplateFromFormat builds a new template from a detected format, keeping
// only the columns that were confidently assigned.
func TemplateFromFormat(df *DetectedFormat, id, ownerID, name string, now time.Time) *ImportTemplate {
	tpl := &ImportTemplate{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		HeaderRow: df.HeaderRow,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, c := range df.Columns {
		if c.SuggestedField == "" {
			continue
		}
		tpl.Columns = append(tpl.Columns, ImportTemplateColumn{
			SourceColumn: c.SourceColumn,
			TargetField:  c.SuggestedField,
			Transform:    c.Transform,
		})
		tpl.RequiredHeaders = append(tpl.RequiredHeaders, c.SourceColumn)
	}
	return tpl
}
