// Package repo maps the domain entities onto document store collections.
// Conversion between structs and store documents is explicit so the stored
// field names stay a deliberate contract rather than a reflection accident.
// Monetary amounts are stored as decimal strings.
package repo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzharov/finrecon/internal/docstore"
)

// Collection names. The session replicator derives per-session collections
// from these, so they are shared constants rather than per-repo literals.
const (
	ColDocuments    = "documents"
	ColTransactions = "transactions"
	ColPayments     = "payments"
	ColTemplates    = "importTemplates"
	ColImportRuns   = "importRuns"
	ColFiles        = "files"
	ColSessions     = "sessions"
)

// MasterCollections lists every collection the replicator clones into a
// session, in clone order.
var MasterCollections = []string{
	ColDocuments,
	ColTransactions,
	ColPayments,
	ColTemplates,
	ColImportRuns,
	ColFiles,
}

func getString(doc docstore.Doc, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}

func getStrings(doc docstore.Doc, field string) []string {
	switch v := doc[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func getTime(doc docstore.Doc, field string) time.Time {
	if v, ok := doc[field].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func getInt(doc docstore.Doc, field string) int {
	switch v := doc[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case decimal.Decimal:
		return int(v.IntPart())
	default:
		return 0
	}
}

func getFloat(doc docstore.Doc, field string) float64 {
	switch v := doc[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func getDecimal(doc docstore.Doc, field string) (decimal.Decimal, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return decimal.Zero, nil
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q: %w", field, err)
		}
		return d, nil
	case decimal.Decimal:
		return val, nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	default:
		return decimal.Zero, fmt.Errorf("field %q: unexpected type %T", field, v)
	}
}
