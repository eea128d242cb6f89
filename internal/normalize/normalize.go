// Package normalize assembles canonical financial documents from mapped
// spreadsheet rows or AI-extracted payloads, enforcing monetary consistency
// and computing aging classification.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/transform"
)

// MappedRow is one source row keyed by canonical target field. Values come
// from the transform pipeline (time.Time, decimal.Decimal, string) or from
// an AI extraction payload (raw strings); both are accepted.
type MappedRow map[string]any

// Warning is a non-fatal normalization finding. The row still succeeds;
// warnings are reported alongside the result.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a row for a missing or unusable required field.
// Rejected rows count toward the batch error total; they never abort the
// import.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Options carries per-import context for normalization.
type Options struct {
	ID           string
	OwnerID      string
	Direction    domain.Direction
	DocumentType string
	HomeCurrency string
	Now          time.Time
}

// Document builds a canonical document from a mapped row. Monetary totals
// are derived when absent and reconciled when present: a total that
// disagrees with subtotal+tax-discount beyond the epsilon yields a warning,
// not a rejection, because minor rounding discrepancies are routine in
// real documents.
func Document(row MappedRow, opts Options) (*domain.CanonicalDocument, []Warning, error) {
	var warnings []Warning

	name := stringField(row, "counterpartyName")
	if name == "" {
		return nil, nil, &ValidationError{Field: "counterpartyName", Message: "missing required field"}
	}

	docDate, ok, err := dateField(row, "documentDate")
	if err != nil {
		return nil, nil, &ValidationError{Field: "documentDate", Message: err.Error()}
	}
	if !ok {
		return nil, nil, &ValidationError{Field: "documentDate", Message: "missing required field"}
	}

	dueDate, ok, err := dateField(row, "dueDate")
	if err != nil {
		return nil, nil, &ValidationError{Field: "dueDate", Message: err.Error()}
	}
	if !ok {
		dueDate = docDate
		warnings = append(warnings, Warning{Field: "dueDate", Message: "missing, defaulted to document date"})
	}

	subtotal, hasSubtotal, err := decimalField(row, "subtotal")
	if err != nil {
		return nil, nil, &ValidationError{Field: "subtotal", Message: err.Error()}
	}
	taxAmount, hasTax, err := decimalField(row, "taxAmount")
	if err != nil {
		return nil, nil, &ValidationError{Field: "taxAmount", Message: err.Error()}
	}
	discount, _, err := decimalField(row, "discount")
	if err != nil {
		return nil, nil, &ValidationError{Field: "discount", Message: err.Error()}
	}
	total, hasTotal, err := decimalField(row, "total")
	if err != nil {
		return nil, nil, &ValidationError{Field: "total", Message: err.Error()}
	}

	derived := subtotal.Add(taxAmount).Sub(discount)
	switch {
	case !hasTotal && hasSubtotal:
		total = derived
	case !hasTotal && !hasSubtotal:
		return nil, nil, &ValidationError{Field: "total", Message: "missing required field and no subtotal to derive it"}
	case hasTotal && hasSubtotal && hasTax:
		if total.Sub(derived).Abs().GreaterThan(domain.AmountEpsilon) {
			warnings = append(warnings, Warning{
				Field:   "total",
				Message: fmt.Sprintf("total %s disagrees with subtotal+tax-discount %s", total, derived),
			})
		}
	}

	currency := strings.ToUpper(stringField(row, "currency"))
	if currency == "" {
		currency = strings.ToUpper(opts.HomeCurrency)
		warnings = append(warnings, Warning{Field: "currency", Message: fmt.Sprintf("missing, defaulted to %s", currency)})
	}
	if len(currency) != 3 {
		return nil, nil, &ValidationError{Field: "currency", Message: fmt.Sprintf("not an ISO 4217 code: %q", currency)}
	}

	direction := opts.Direction
	if !direction.IsValid() {
		direction = domain.DirectionOutgoing
	}

	docType := opts.DocumentType
	if docType == "" {
		if direction == domain.DirectionOutgoing {
			docType = "invoice"
		} else {
			docType = "bill"
		}
	}

	doc := &domain.CanonicalDocument{
		ID:                   opts.ID,
		OwnerID:              opts.OwnerID,
		Direction:            direction,
		DocumentType:         docType,
		CounterpartyName:     name,
		CounterpartyEmail:    stringField(row, "counterpartyEmail"),
		DocumentNumber:       stringField(row, "documentNumber"),
		DocumentDate:         docDate,
		DueDate:              dueDate,
		Subtotal:             subtotal,
		TaxAmount:            taxAmount,
		Discount:             discount,
		Total:                total,
		Currency:             currency,
		PaymentStatus:        domain.PaymentUnpaid,
		AmountPaid:           decimal.Zero,
		AmountRemaining:      total,
		ReconciliationStatus: domain.ReconUnmatched,
		CreatedAt:            opts.Now,
		UpdatedAt:            opts.Now,
	}

	if hasSubtotal && !subtotal.IsZero() {
		doc.TaxRate = taxAmount.Div(subtotal).Round(4)
	}

	if err := doc.Validate(); err != nil {
		return nil, nil, &ValidationError{Field: "document", Message: err.Error()}
	}

	doc.RefreshAging(opts.Now)
	return doc, warnings, nil
}

func stringField(row MappedRow, field string) string {
	v, ok := row[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func decimalField(row MappedRow, field string) (decimal.Decimal, bool, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return decimal.Zero, false, nil
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true, nil
	case float64:
		return decimal.NewFromFloat(val), true, nil
	case int:
		return decimal.NewFromInt(int64(val)), true, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return decimal.Zero, false, nil
		}
		parsed, err := transform.Apply(transform.Transform{Kind: transform.KindNumber}, val)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("not a number: %q", val)
		}
		return parsed.(decimal.Decimal), true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unsupported type %T", v)
	}
}

// isoDateFormats are accepted for date fields arriving as strings, e.g.
// from AI extraction payloads.
var isoDateFormats = []string{"2006-01-02", time.RFC3339}

func dateField(row MappedRow, field string) (time.Time, bool, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false, nil
		}
		return val, true, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false, nil
		}
		for _, layout := range isoDateFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("not a date: %q", val)
	default:
		return time.Time{}, false, fmt.Errorf("unsupported type %T", v)
	}
}
