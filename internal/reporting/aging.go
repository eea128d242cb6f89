// Package reporting builds accounts receivable/payable aging summaries and
// exports them to BigQuery for downstream dashboards.
package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzharov/finrecon/internal/domain"
)

// AgingLine is one counterparty's outstanding balance split across the
// aging buckets, in the document currency.
type AgingLine struct {
	Counterparty string          `json:"counterparty"`
	Currency     string          `json:"currency"`
	Current      decimal.Decimal `json:"current"`
	Days1To30    decimal.Decimal `json:"days1to30"`
	Days31To60   decimal.Decimal `json:"days31to60"`
	Days61To90   decimal.Decimal `json:"days61to90"`
	Days90Plus   decimal.Decimal `json:"days90plus"`
	Total        decimal.Decimal `json:"total"`
}

// AgingReport is the full summary for one owner and direction as of a
// point in time.
type AgingReport struct {
	OwnerID   string           `json:"ownerId"`
	Direction domain.Direction `json:"direction"`
	AsOf      time.Time        `json:"asOf"`
	Lines     []AgingLine      `json:"lines"`
	Total     decimal.Decimal  `json:"total"`
}

// BuildAging summarizes the open documents of one direction by
// counterparty and bucket. Paid, void and overpaid documents contribute
// nothing. Lines sort by counterparty then currency so the report is
// stable across runs.
func BuildAging(ownerID string, direction domain.Direction, docs []*domain.CanonicalDocument, asOf time.Time) *AgingReport {
	type key struct{ name, currency string }
	lines := make(map[key]*AgingLine)

	report := &AgingReport{OwnerID: ownerID, Direction: direction, AsOf: asOf}
	for _, doc := range docs {
		if doc.Direction != direction || doc.OwnerID != ownerID {
			continue
		}
		switch doc.PaymentStatus {
		case domain.PaymentPaid, domain.PaymentVoid, domain.PaymentOverpaid:
			continue
		}
		remaining := doc.AmountRemaining
		if remaining.Sign() <= 0 {
			continue
		}

		k := key{doc.CounterpartyName, doc.Currency}
		line, ok := lines[k]
		if !ok {
			line = &AgingLine{Counterparty: doc.CounterpartyName, Currency: doc.Currency}
			lines[k] = line
		}

		days := domain.DaysOverdue(doc.DueDate, asOf)
		switch domain.BucketFor(days) {
		case domain.AgingCurrent:
			line.Current = line.Current.Add(remaining)
		case domain.Aging1To30:
			line.Days1To30 = line.Days1To30.Add(remaining)
		case domain.Aging31To60:
			line.Days31To60 = line.Days31To60.Add(remaining)
		case domain.Aging61To90:
			line.Days61To90 = line.Days61To90.Add(remaining)
		case domain.Aging90Plus:
			line.Days90Plus = line.Days90Plus.Add(remaining)
		}
		line.Total = line.Total.Add(remaining)
		report.Total = report.Total.Add(remaining)
	}

	for _, line := range lines {
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		if report.Lines[i].Counterparty != report.Lines[j].Counterparty {
			return report.Lines[i].Counterparty < report.Lines[j].Counterparty
		}
		return report.Lines[i].Currency < report.Lines[j].Currency
	})
	return report
}
