package importer

import (
	"errors"
	"testing"

	"github.com/mzharov/finrecon/internal/transform"
)

func invoiceTable() Table {
	return Table{
		Filename: "acme_invoices.csv",
		Rows: [][]string{
			{"Invoice Number", "Invoice Date", "Due Date", "Customer", "Total Amount", "Currency"},
			{"INV-001", "2024-01-15", "2024-02-14", "Acme Corp", "1,200.00", "USD"},
			{"INV-002", "2024-01-20", "2024-02-19", "Globex", "850.50", "USD"},
			{"INV-003", "2024-01-22", "2024-02-21", "Initech", "99.95", "USD"},
		},
	}
}

func fieldFor(t *testing.T, df *DetectedFormat, header string) DetectedColumn {
	t.Helper()
	for _, c := range df.Columns {
		if c.SourceColumn == header {
			return c
		}
	}
	t.Fatalf("no detected column for header %q", header)
	return DetectedColumn{}
}

func TestDetectFormat_CleanInvoiceFile(t *testing.T) {
	df, err := DetectFormat(invoiceTable())
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}

	if df.HeaderRow != 0 {
		t.Errorf("HeaderRow = %d, want 0", df.HeaderRow)
	}
	if df.DataStartRow != 1 {
		t.Errorf("DataStartRow = %d, want 1", df.DataStartRow)
	}

	wantFields := map[string]string{
		"Invoice Number": "documentNumber",
		"Invoice Date":   "documentDate",
		"Due Date":       "dueDate",
		"Customer":       "counterpartyName",
		"Total Amount":   "total",
		"Currency":       "currency",
	}
	for header, want := range wantFields {
		col := fieldFor(t, df, header)
		if col.SuggestedField != want {
			t.Errorf("column %q suggested %q, want %q", header, col.SuggestedField, want)
		}
		if col.Confidence < assignThreshold {
			t.Errorf("column %q confidence %f below threshold", header, col.Confidence)
		}
	}

	// Date columns must pin the format that matched the samples.
	dateCol := fieldFor(t, df, "Invoice Date")
	if dateCol.Transform.DateFormat != "YYYY-MM-DD" {
		t.Errorf("date transform format = %q, want YYYY-MM-DD", dateCol.Transform.DateFormat)
	}
}

func TestDetectFormat_HeaderNotOnFirstRow(t *testing.T) {
	table := Table{
		Filename: "export.csv",
		Rows: [][]string{
			{"Quarterly Export", "", "", "", ""},
			{"", "", "", "", ""},
			{"Reference", "Date", "Vendor", "Tax", "Total"},
			{"B-100", "01/02/2024", "Staples", "4.00", "24.00"},
			{"B-101", "05/02/2024", "Uline", "12.50", "75.00"},
		},
	}

	df, err := DetectFormat(table)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if df.HeaderRow != 2 {
		t.Errorf("HeaderRow = %d, want 2", df.HeaderRow)
	}
	if df.DataStartRow != 3 {
		t.Errorf("DataStartRow = %d, want 3", df.DataStartRow)
	}
	if got := fieldFor(t, df, "Vendor").SuggestedField; got != "counterpartyName" {
		t.Errorf("Vendor suggested %q, want counterpartyName", got)
	}
}

func TestDetectFormat_AmbiguousHeader(t *testing.T) {
	table := Table{
		Filename: "sparse.csv",
		Rows: [][]string{
			{"x", "", "", "", ""},
			{"", "y", "", "", ""},
		},
	}
	_, err := DetectFormat(table)
	if !errors.Is(err, ErrAmbiguousHeaderRow) {
		t.Fatalf("DetectFormat() error = %v, want ErrAmbiguousHeaderRow", err)
	}
}

func TestDetectFormat_UnknownColumnLeftUnassigned(t *testing.T) {
	table := Table{
		Filename: "weird.csv",
		Rows: [][]string{
			{"Invoice Number", "Zorblatt Coefficient"},
			{"INV-001", "purple"},
			{"INV-002", "seven"},
		},
	}
	df, err := DetectFormat(table)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if got := fieldFor(t, df, "Zorblatt Coefficient").SuggestedField; got != "" {
		t.Errorf("unknown column assigned to %q, want unassigned", got)
	}
}

func TestDetectFormat_DuplicateFieldEarlierColumnWins(t *testing.T) {
	table := Table{
		Filename: "dupes.csv",
		Rows: [][]string{
			{"Total", "Total"},
			{"100.00", "100.00"},
			{"250.00", "250.00"},
		},
	}
	df, err := DetectFormat(table)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if df.Columns[0].SuggestedField != "total" {
		t.Errorf("first column suggested %q, want total", df.Columns[0].SuggestedField)
	}
	if df.Columns[1].SuggestedField != "" {
		t.Errorf("second column suggested %q, want unassigned", df.Columns[1].SuggestedField)
	}
}

func TestDetectFormat_StolenFieldResetsLoser(t *testing.T) {
	// "Amount" claims total on header alone, then the numeric "Total"
	// column outscores it and takes the field over.
	table := Table{
		Filename: "steal.csv",
		Rows: [][]string{
			{"Amount", "Total"},
			{"pending", "100.00"},
			{"waived", "250.00"},
		},
	}
	df, err := DetectFormat(table)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if df.Columns[1].SuggestedField != "total" {
		t.Fatalf("second column suggested %q, want total", df.Columns[1].SuggestedField)
	}
	loser := df.Columns[0]
	if loser.SuggestedField != "" {
		t.Errorf("dethroned column suggested %q, want unassigned", loser.SuggestedField)
	}
	if loser.Confidence != 0 {
		t.Errorf("dethroned column confidence = %v, want 0", loser.Confidence)
	}
	if loser.DetectedType != transform.KindNone {
		t.Errorf("dethroned column type = %v, want none", loser.DetectedType)
	}
	if loser.Transform.Kind != transform.KindNone {
		t.Errorf("dethroned column transform = %v, want none", loser.Transform.Kind)
	}
}

func TestHeaderSimilarity(t *testing.T) {
	var dueDate *TargetField
	for i := range targetFields {
		if targetFields[i].Name == "dueDate" {
			dueDate = &targetFields[i]
		}
	}

	tests := []struct {
		header string
		min    float64
	}{
		{"Due Date", 1.0},
		{"due_date", 1.0},
		{"DUE  DATE", 1.0},
		{"Payment Due Date", 0.8},
		{"due dte", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := headerSimilarity(tt.header, dueDate); got < tt.min {
				t.Errorf("headerSimilarity(%q) = %f, want >= %f", tt.header, got, tt.min)
			}
		})
	}
}

func TestReadTable_CSV(t *testing.T) {
	data := "a,b,c\n1,2,3\n"
	table, err := ReadTable("simple.csv", []byte(data))
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(table.Rows) != 2 || table.Rows[1][2] != "3" {
		t.Errorf("unexpected rows: %v", table.Rows)
	}

	if _, err := ReadTable("empty.csv", nil); err == nil {
		t.Error("ReadTable() on empty file should fail")
	}
}

func TestReadTable_RaggedCSV(t *testing.T) {
	data := "report\na,b,c\n1,2,3\n"
	table, err := ReadTable("ragged.csv", []byte(data))
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(table.Rows) != 3 {
		t.Errorf("len(Rows) = %d, want 3", len(table.Rows))
	}
}

func TestSampleAgreement_NumberColumn(t *testing.T) {
	probe := transform.Transform{Kind: transform.KindNumber}
	score, _ := sampleAgreement([]string{"1,200.00", "850.50", "oops"}, probe)
	want := 2.0 / 3.0
	if score < want-0.001 || score > want+0.001 {
		t.Errorf("sampleAgreement() = %f, want %f", score, want)
	}
}

func TestNormalizeHeader(t *testing.T) {
	for _, s := range []string{"Due Date", "due_date", " DUE-DATE ", "due   date"} {
		if got := normalizeHeader(s); got != "due date" {
			t.Errorf("normalizeHeader(%q) = %q, want %q", s, got, "due date")
		}
	}
}
