package extraction

import (
	"strings"
	"testing"
)

const sampleJSON = `{
	"documentType": "invoice",
	"metadata": [
		{"label": "Invoice Number", "value": "INV-1001", "category": "identity"},
		{"label": "Total", "value": "1,200.00", "category": "amounts"}
	],
	"headers": ["Description", "Qty", "Amount"],
	"rows": [["Widgets", "8", "1,028.80"], ["Shipping", "1", "171.20"]],
	"pageCount": 2,
	"confidence": 0.93,
	"isExtractable": true
}`

func TestParseResponse_CleanJSON(t *testing.T) {
	result, err := ParseResponse(sampleJSON)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if result.DocumentType != "invoice" {
		t.Errorf("documentType = %q", result.DocumentType)
	}
	if len(result.Metadata) != 2 || result.Metadata[0].Value != "INV-1001" {
		t.Errorf("unexpected metadata: %+v", result.Metadata)
	}
	if len(result.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.IsExtractable {
		t.Error("expected isExtractable")
	}
}

func TestParseResponse_StripsMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"json fence", "```json\n" + sampleJSON + "\n```"},
		{"bare fence", "```\n" + sampleJSON + "\n```"},
		{"leading prose", "Here is the extraction:\n\n" + sampleJSON},
		{"surrounding whitespace", "\n\n  " + sampleJSON + "  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseResponse(tt.raw)
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if result.DocumentType != "invoice" {
				t.Errorf("documentType = %q", result.DocumentType)
			}
		})
	}
}

func TestParseResponse_RaggedRowsWarn(t *testing.T) {
	raw := strings.Replace(sampleJSON, `["Shipping", "1", "171.20"]`, `["Shipping", "1"]`, 1)
	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "row 1") {
		t.Errorf("warning does not name the row: %s", result.Warnings[0])
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	if _, err := ParseResponse("the document is blank"); err == nil {
		t.Error("expected error for non-JSON response")
	}
}
