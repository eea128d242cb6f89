package importer

import (
	"errors"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/mzharov/finrecon/internal/transform"
)

// ErrAmbiguousHeaderRow is returned when no candidate row meets the header
// density threshold. The whole file is rejected; there is no partial result.
var ErrAmbiguousHeaderRow = errors.New("no row qualifies as a header row")

const (
	// headerScanRows is how many leading rows are considered as header candidates.
	headerScanRows = 10
	// headerDensity is the minimum fraction of non-empty cells for a header row.
	headerDensity = 0.6
	// sampleValues is how many data rows are probed for type agreement.
	sampleValues = 5
	// assignThreshold is the minimum per-column confidence to assign a field.
	assignThreshold = 0.5

	headerWeight = 0.5
	sampleWeight = 0.5
)

// Table is a raw tabular file: rows of cells, plus the source filename for
// vendor-pattern matching.
type Table struct {
	Filename string
	Rows     [][]string
}

// DetectedColumn is the inference result for one source column.
type DetectedColumn struct {
	SourceColumn   string              `json:"sourceColumn" firestore:"sourceColumn"`
	Index          int                 `json:"index" firestore:"index"`
	SuggestedField string              `json:"suggestedField,omitempty" firestore:"suggestedField,omitempty"`
	Confidence     float64             `json:"confidence" firestore:"confidence"`
	DetectedType   transform.Kind      `json:"detectedType" firestore:"detectedType"`
	Transform      transform.Transform `json:"transform" firestore:"transform"`
}

// DetectedFormat is the full inference result for a tabular file.
type DetectedFormat struct {
	HeaderRow    int              `json:"headerRow" firestore:"headerRow"`
	DataStartRow int              `json:"dataStartRow" firestore:"dataStartRow"`
	Columns      []DetectedColumn `json:"columns" firestore:"columns"`
	Confidence   float64          `json:"confidence" firestore:"confidence"`
	TemplateID   string           `json:"templateId,omitempty" firestore:"templateId,omitempty"`
}

// DetectFormat infers the header row and per-column field mappings for an
// arbitrary tabular file. Columns whose best score stays below the
// assignment threshold are left unassigned rather than guessed.
func DetectFormat(table Table) (*DetectedFormat, error) {
	headerRow, err := findHeaderRow(table.Rows)
	if err != nil {
		return nil, err
	}

	headers := table.Rows[headerRow]
	dataStart := headerRow + 1
	samples := collectSamples(table.Rows, dataStart, len(headers))

	df := &DetectedFormat{
		HeaderRow:    headerRow,
		DataStartRow: dataStart,
		Columns:      make([]DetectedColumn, len(headers)),
	}

	// fieldOwner tracks which column currently claims each target field, so
	// a field is never assigned twice. Ties go to the earlier column index.
	fieldOwner := make(map[string]int)

	for col, header := range headers {
		dc := DetectedColumn{
			SourceColumn: header,
			Index:        col,
			DetectedType: transform.KindNone,
			Transform:    transform.Transform{Kind: transform.KindNone},
		}

		bestScore := 0.0
		var bestField *TargetField
		bestTransform := transform.Transform{Kind: transform.KindNone}
		for i := range targetFields {
			f := &targetFields[i]
			agreement, refined := sampleAgreement(samples[col], f.TypeProbe)
			score := headerWeight*headerSimilarity(header, f) + sampleWeight*agreement
			if score > bestScore {
				bestScore = score
				bestField = f
				bestTransform = refined
			}
		}

		if bestField != nil && bestScore >= assignThreshold {
			if owner, taken := fieldOwner[bestField.Name]; taken {
				// The earlier column keeps the field unless this one is
				// strictly more confident.
				if bestScore > df.Columns[owner].Confidence {
					df.Columns[owner].SuggestedField = ""
					df.Columns[owner].Confidence = 0
					df.Columns[owner].DetectedType = transform.KindNone
					df.Columns[owner].Transform = transform.Transform{Kind: transform.KindNone}
					fieldOwner[bestField.Name] = col
					dc.SuggestedField = bestField.Name
					dc.Confidence = bestScore
					dc.DetectedType = bestTransform.Kind
					dc.Transform = bestTransform
				}
			} else {
				fieldOwner[bestField.Name] = col
				dc.SuggestedField = bestField.Name
				dc.Confidence = bestScore
				dc.DetectedType = bestTransform.Kind
				dc.Transform = bestTransform
			}
		}

		df.Columns[col] = dc
	}

	df.Confidence = overallConfidence(df.Columns)
	return df, nil
}

// findHeaderRow scans the first headerScanRows rows and returns the earliest
// row whose non-empty cell density meets the threshold.
func findHeaderRow(rows [][]string) (int, error) {
	limit := len(rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}
		nonEmpty := 0
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				nonEmpty++
			}
		}
		if float64(nonEmpty)/float64(len(row)) >= headerDensity {
			return i, nil
		}
	}
	return 0, ErrAmbiguousHeaderRow
}

func collectSamples(rows [][]string, start, width int) [][]string {
	samples := make([][]string, width)
	for r := start; r < len(rows) && r < start+sampleValues; r++ {
		for c := 0; c < width && c < len(rows[r]); c++ {
			if v := strings.TrimSpace(rows[r][c]); v != "" {
				samples[c] = append(samples[c], v)
			}
		}
	}
	return samples
}

// headerSimilarity scores header text against a target field's aliases:
// exact normalized match 1.0, substring containment 0.8, otherwise
// edit-distance similarity.
func headerSimilarity(header string, f *TargetField) float64 {
	h := normalizeHeader(header)
	if h == "" {
		return 0
	}
	best := 0.0
	for _, alias := range f.Aliases {
		a := normalizeHeader(alias)
		var score float64
		switch {
		case h == a:
			score = 1.0
		case strings.Contains(h, a) || strings.Contains(a, h):
			score = 0.8
		default:
			score = editSimilarity(h, a)
		}
		if score > best {
			best = score
		}
	}
	return best
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func editSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// sampleAgreement runs the field's expected transform against sample values
// and returns the fraction that parse cleanly, plus the transform refined to
// the samples (date columns pin the format that actually matched).
func sampleAgreement(samples []string, probe transform.Transform) (float64, transform.Transform) {
	if len(samples) == 0 {
		return 0, probe
	}
	if probe.Kind == transform.KindNone {
		// Free-text fields accept anything; give a neutral half score so
		// header similarity dominates.
		return 0.5, probe
	}
	if probe.Kind == transform.KindDate {
		return dateAgreement(samples)
	}
	ok := 0
	for _, s := range samples {
		if _, err := transform.Apply(probe, s); err == nil {
			ok++
		}
	}
	return float64(ok) / float64(len(samples)), probe
}

// commonDateFormats are probed when scoring date columns; the detected
// column pins the one that actually matched.
var commonDateFormats = []string{"YYYY-MM-DD", "DD/MM/YYYY", "MM/DD/YYYY", "DD-MM-YYYY", "DD MMM YYYY"}

func dateAgreement(samples []string) (float64, transform.Transform) {
	best := 0.0
	bestProbe := transform.Transform{Kind: transform.KindDate, DateFormat: commonDateFormats[0]}
	for _, format := range commonDateFormats {
		probe := transform.Transform{Kind: transform.KindDate, DateFormat: format}
		ok := 0
		for _, s := range samples {
			if _, err := transform.Apply(probe, s); err == nil {
				ok++
			}
		}
		if score := float64(ok) / float64(len(samples)); score > best {
			best = score
			bestProbe = probe
		}
	}
	return best, bestProbe
}

func overallConfidence(cols []DetectedColumn) float64 {
	assigned := 0
	sum := 0.0
	for _, c := range cols {
		if c.SuggestedField != "" {
			assigned++
			sum += c.Confidence
		}
	}
	if assigned == 0 {
		return 0
	}
	return sum / float64(assigned)
}
