// Package importer infers column-to-field mappings for arbitrary tabular
// files and matches them against stored import templates.
package importer

import "github.com/mzharov/finrecon/internal/transform"

// TargetField describes one canonical document field a spreadsheet column
// can map to. Aliases are matched case- and whitespace-insensitively against
// header text; TypeProbe is run against sample values to score type
// agreement.
type TargetField struct {
	Name      string
	Aliases   []string
	TypeProbe transform.Transform
}

// targetFields is the canonical field registry, in priority order. When two
// fields score the same for a column, the earlier entry wins.
var targetFields = []TargetField{
	{
		Name:      "documentNumber",
		Aliases:   []string{"invoice number", "invoice no", "inv no", "bill number", "document number", "doc no", "reference", "ref"},
		TypeProbe: transform.Transform{Kind: transform.KindNone},
	},
	{
		Name:      "documentDate",
		Aliases:   []string{"date", "invoice date", "issue date", "document date", "transaction date", "bill date"},
		TypeProbe: transform.Transform{Kind: transform.KindDate, DateFormat: "YYYY-MM-DD"},
	},
	{
		Name:      "dueDate",
		Aliases:   []string{"due date", "due", "payment due", "due by"},
		TypeProbe: transform.Transform{Kind: transform.KindDate, DateFormat: "YYYY-MM-DD"},
	},
	{
		Name:      "counterpartyName",
		Aliases:   []string{"customer", "customer name", "client", "vendor", "vendor name", "supplier", "payee", "counterparty", "name"},
		TypeProbe: transform.Transform{Kind: transform.KindNone},
	},
	{
		Name:      "subtotal",
		Aliases:   []string{"subtotal", "sub total", "net", "net amount", "amount excl tax"},
		TypeProbe: transform.Transform{Kind: transform.KindNumber},
	},
	{
		Name:      "taxAmount",
		Aliases:   []string{"tax", "tax amount", "vat", "vat amount", "gst", "sales tax"},
		TypeProbe: transform.Transform{Kind: transform.KindNumber},
	},
	{
		Name:      "total",
		Aliases:   []string{"total", "total amount", "amount", "amount due", "gross", "grand total", "balance due"},
		TypeProbe: transform.Transform{Kind: transform.KindNumber},
	},
	{
		Name:      "currency",
		Aliases:   []string{"currency", "ccy", "currency code"},
		TypeProbe: transform.Transform{Kind: transform.KindNone},
	},
	{
		Name:      "description",
		Aliases:   []string{"description", "memo", "details", "narrative", "particulars"},
		TypeProbe: transform.Transform{Kind: transform.KindNone},
	},
}

// TargetFields returns the canonical field registry.
func TargetFields() []TargetField {
	return targetFields
}

// DefaultTransformFor returns the transform a target field expects, or a
// pass-through transform for unknown fields.
func DefaultTransformFor(field string) transform.Transform {
	for _, f := range targetFields {
		if f.Name == field {
			return f.TypeProbe
		}
	}
	return transform.Transform{Kind: transform.KindNone}
}
