// Package transform applies typed column transforms to raw cell values.
// Transforms are pure functions from a raw string to a normalized value or a
// field-level ParseError; they never have side effects. Errors are values,
// not aborts - callers decide row-level vs batch-level tolerance.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies a transform variant.
type Kind string

const (
	KindNone     Kind = "none"
	KindDate     Kind = "date"
	KindNumber   Kind = "number"
	KindCurrency Kind = "currency"
	KindSplit    Kind = "split"
	KindRegex    Kind = "regex"
	KindMap      Kind = "map"
)

// Transform is a tagged variant over the supported column transforms. Only
// the fields relevant to Kind are consulted.
type Transform struct {
	Kind Kind `json:"kind" firestore:"kind"`

	// date
	DateFormat string `json:"dateFormat,omitempty" firestore:"dateFormat,omitempty"`

	// number / currency
	ThousandsSep string `json:"thousandsSep,omitempty" firestore:"thousandsSep,omitempty"`
	DecimalSep   string `json:"decimalSep,omitempty" firestore:"decimalSep,omitempty"`

	// currency
	Symbol string `json:"symbol,omitempty" firestore:"symbol,omitempty"`

	// split
	Delimiter string `json:"delimiter,omitempty" firestore:"delimiter,omitempty"`
	Index     int    `json:"index,omitempty" firestore:"index,omitempty"`

	// regex
	Pattern string `json:"pattern,omitempty" firestore:"pattern,omitempty"`
	Group   int    `json:"group,omitempty" firestore:"group,omitempty"`

	// map
	Table map[string]string `json:"table,omitempty" firestore:"table,omitempty"`
}

// ErrorKind classifies a ParseError.
type ErrorKind string

const (
	InvalidDate   ErrorKind = "invalid_date"
	InvalidNumber ErrorKind = "invalid_number"
	UnmappedValue ErrorKind = "unmapped_value"
	NoMatch       ErrorKind = "no_match"
	MissingPart   ErrorKind = "missing_part"
	BadPattern    ErrorKind = "bad_pattern"
)

// ParseError is a per-cell transform failure. The row it belongs to may
// still partially succeed; the import pipeline accumulates these.
type ParseError struct {
	Kind    ErrorKind
	Value   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q: %s", e.Kind, e.Value, e.Message)
}

// Apply runs the transform against a raw cell value and returns the
// normalized value: time.Time for dates, decimal.Decimal for numbers and
// currency amounts, string for everything else.
func Apply(t Transform, raw string) (any, error) {
	switch t.Kind {
	case KindNone, "":
		return strings.TrimSpace(raw), nil
	case KindDate:
		return applyDate(t, raw)
	case KindNumber:
		return applyNumber(t, raw)
	case KindCurrency:
		return applyCurrency(t, raw)
	case KindSplit:
		return applySplit(t, raw)
	case KindRegex:
		return applyRegex(t, raw)
	case KindMap:
		return applyMap(t, raw)
	default:
		return nil, fmt.Errorf("Apply: unknown transform kind %q", t.Kind)
	}
}

// layoutReplacer converts explicit date tokens (DD/MM/YYYY style) to a Go
// reference layout. Longer tokens first so MM is not consumed inside MMM.
var layoutReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"MMM", "Jan",
	"MM", "01",
	"DD", "02",
	"YY", "06",
)

func applyDate(t Transform, raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if t.DateFormat == "" {
		return time.Time{}, &ParseError{Kind: InvalidDate, Value: raw, Message: "date transform has no format"}
	}
	layout := layoutReplacer.Replace(t.DateFormat)
	parsed, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}, &ParseError{Kind: InvalidDate, Value: raw, Message: fmt.Sprintf("does not match format %s", t.DateFormat)}
	}
	// time.Parse normalizes out-of-range components in some layouts; round-trip
	// to reject values like day 31 in a 30-day month.
	if parsed.Format(layout) != v && !equivalentDate(parsed, layout, v) {
		return time.Time{}, &ParseError{Kind: InvalidDate, Value: raw, Message: fmt.Sprintf("out of range for format %s", t.DateFormat)}
	}
	return parsed, nil
}

// equivalentDate tolerates missing leading zeros in the input ("1/2/2024"
// for DD/MM/YYYY) by re-parsing the canonical form.
func equivalentDate(parsed time.Time, layout, v string) bool {
	reparsed, err := time.Parse(layout, parsed.Format(layout))
	if err != nil {
		return false
	}
	original, err := time.Parse(layout, v)
	if err != nil {
		return false
	}
	return reparsed.Equal(original)
}

func applyNumber(t Transform, raw string) (decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return decimal.Decimal{}, &ParseError{Kind: InvalidNumber, Value: raw, Message: "empty value"}
	}

	neg := false
	// Accounting negatives: (1,234.56)
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg = true
		v = v[1 : len(v)-1]
	}

	dec := t.DecimalSep
	if dec == "" {
		dec = "."
	}
	thousands := t.ThousandsSep
	if thousands == "" && dec == "." {
		thousands = ","
	}
	if thousands == dec {
		return decimal.Decimal{}, &ParseError{Kind: InvalidNumber, Value: raw,
			Message: fmt.Sprintf("thousands and decimal separator are both %q", dec)}
	}

	if thousands != "" {
		v = strings.ReplaceAll(v, thousands, "")
	}
	v = strings.ReplaceAll(v, " ", "")
	if dec != "." {
		if strings.Contains(v, ".") {
			return decimal.Decimal{}, &ParseError{Kind: InvalidNumber, Value: raw, Message: "unexpected decimal point"}
		}
		v = strings.ReplaceAll(v, dec, ".")
	}
	if strings.Count(v, ".") > 1 {
		return decimal.Decimal{}, &ParseError{Kind: InvalidNumber, Value: raw, Message: "multiple decimal points"}
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Kind: InvalidNumber, Value: raw, Message: "not a number"}
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func applyCurrency(t Transform, raw string) (decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if t.Symbol != "" {
		v = strings.TrimSpace(strings.TrimPrefix(v, t.Symbol))
		v = strings.TrimSpace(strings.TrimSuffix(v, t.Symbol))
	}
	num := Transform{Kind: KindNumber, ThousandsSep: t.ThousandsSep, DecimalSep: t.DecimalSep}
	return applyNumber(num, v)
}

func applySplit(t Transform, raw string) (string, error) {
	if t.Delimiter == "" {
		return "", &ParseError{Kind: MissingPart, Value: raw, Message: "split transform has no delimiter"}
	}
	parts := strings.Split(raw, t.Delimiter)
	if t.Index < 0 || t.Index >= len(parts) {
		return "", &ParseError{Kind: MissingPart, Value: raw,
			Message: fmt.Sprintf("wanted part %d but value has %d parts", t.Index, len(parts))}
	}
	return strings.TrimSpace(parts[t.Index]), nil
}

func applyRegex(t Transform, raw string) (string, error) {
	re, err := regexp.Compile(t.Pattern)
	if err != nil {
		return "", &ParseError{Kind: BadPattern, Value: raw, Message: fmt.Sprintf("invalid pattern %q", t.Pattern)}
	}
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", &ParseError{Kind: NoMatch, Value: raw, Message: fmt.Sprintf("no match for %q", t.Pattern)}
	}
	if t.Group < 0 || t.Group >= len(m) {
		return "", &ParseError{Kind: NoMatch, Value: raw, Message: fmt.Sprintf("group %d absent", t.Group)}
	}
	return m[t.Group], nil
}

// applyMap performs an exact-match lookup. Unmapped input fails; the raw
// value is never passed through.
func applyMap(t Transform, raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if mapped, ok := t.Table[key]; ok {
		return mapped, nil
	}
	return "", &ParseError{Kind: UnmappedValue, Value: raw, Message: "value not in mapping table"}
}
