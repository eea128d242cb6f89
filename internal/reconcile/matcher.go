// Package reconcile matches canonical documents against bank transactions.
// The matcher is pure: it scores and assigns over an in-memory snapshot and
// returns the mutated documents plus the payment records to persist, so a
// run never observes its own writes and repeated runs over the same
// snapshot produce the same assignment.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/mzharov/finrecon/internal/domain"
)

// ErrTransactionAlreadyConsumed rejects a match against a transaction that
// already backs a payment record. A transaction backs at most one payment
// record at any time.
var ErrTransactionAlreadyConsumed = errors.New("reconcile: transaction already consumed")

// ErrBelowThreshold rejects a proposed match whose confidence does not
// clear the acceptance threshold. Proposals from external collaborators go
// through the same gate as automatic matches.
var ErrBelowThreshold = errors.New("reconcile: confidence below acceptance threshold")

// Config tunes the matcher. Weights should sum to 1.
type Config struct {
	AcceptanceThreshold float64
	DateWindowDays      int

	AmountWeight       float64
	DateWeight         float64
	CounterpartyWeight float64
}

// DefaultConfig returns the standard thresholds and weights.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: 0.7,
		DateWindowDays:      90,
		AmountWeight:        0.5,
		DateWeight:          0.25,
		CounterpartyWeight:  0.25,
	}
}

// Matcher assigns transactions to documents.
type Matcher struct {
	cfg Config
}

// NewMatcher creates a matcher with the given config.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Snapshot is the consistent view a run matches against. Consumed maps
// transaction id to the document that already holds it, seeded from
// existing payment records.
type Snapshot struct {
	Documents    []*domain.CanonicalDocument
	Transactions []*domain.Transaction
	Consumed     map[string]string
}

// Proposal is a candidate the matcher scored but did not accept, surfaced
// for manual or agent investigation.
type Proposal struct {
	DocumentID    string  `json:"documentId"`
	TransactionID string  `json:"transactionId"`
	Confidence    float64 `json:"confidence"`
}

// Result is the outcome of one matching run. Updated holds every document
// the run mutated; Payments holds the new records to persist.
type Result struct {
	Payments  []*domain.PaymentRecord
	Updated   []*domain.CanonicalDocument
	Proposals []Proposal
}

// Run matches every unmatched or partially matched document in the
// snapshot against the unconsumed transactions of the required direction.
// Documents are processed in id order and candidate ties break by
// transaction id, so the assignment is deterministic regardless of input
// ordering.
func (m *Matcher) Run(snap Snapshot, now time.Time) *Result {
	consumed := make(map[string]string, len(snap.Consumed))
	for txID, docID := range snap.Consumed {
		consumed[txID] = docID
	}

	docs := make([]*domain.CanonicalDocument, len(snap.Documents))
	copy(docs, snap.Documents)
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	txByID := make(map[string]*domain.Transaction, len(snap.Transactions))
	txIDs := make([]string, 0, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		txByID[tx.ID] = tx
		txIDs = append(txIDs, tx.ID)
	}
	sort.Strings(txIDs)

	result := &Result{}
	for _, doc := range docs {
		if doc.ReconciliationStatus != domain.ReconUnmatched && doc.ReconciliationStatus != domain.ReconPartial {
			continue
		}
		updated := false

		// A document may absorb several transactions in one run, e.g.
		// two partial payments covering one invoice.
		for doc.AmountRemaining.Sign() > 0 {
			best, bestScore := m.pickBest(doc, txIDs, txByID, consumed, now)
			if best == nil {
				break
			}
			if bestScore < m.cfg.AcceptanceThreshold {
				result.Proposals = append(result.Proposals, Proposal{
					DocumentID:    doc.ID,
					TransactionID: best.ID,
					Confidence:    bestScore,
				})
				break
			}

			record := m.newPayment(doc, best, bestScore, domain.MatchAutomatic, now)
			if err := record.Validate(best, doc); err != nil {
				break
			}
			if err := doc.ApplyPayment(record.Amount, best.ID); err != nil {
				break
			}
			consumed[best.ID] = doc.ID
			result.Payments = append(result.Payments, record)
			updated = true
		}

		if updated {
			doc.UpdatedAt = now
			doc.RefreshAging(now)
			result.Updated = append(result.Updated, doc)
		}
	}
	return result
}

// ManualMatch applies an operator-chosen transaction to a document. It
// bypasses scoring but not the consumption invariant. A manual match on a
// document already fully covered by automatic matches marks it disputed
// instead of silently stacking payments.
func (m *Matcher) ManualMatch(doc *domain.CanonicalDocument, tx *domain.Transaction, consumed map[string]string, now time.Time) (*domain.PaymentRecord, error) {
	if holder, ok := consumed[tx.ID]; ok {
		return nil, fmt.Errorf("transaction %s held by document %s: %w", tx.ID, holder, ErrTransactionAlreadyConsumed)
	}
	wasMatched := doc.ReconciliationStatus == domain.ReconMatched

	record := m.newPayment(doc, tx, 1.0, domain.MatchManual, now)
	if err := record.Validate(tx, doc); err != nil {
		return nil, fmt.Errorf("ManualMatch: %w", err)
	}
	if err := doc.ApplyPayment(record.Amount, tx.ID); err != nil {
		return nil, fmt.Errorf("ManualMatch: %w", err)
	}
	if wasMatched {
		doc.ReconciliationStatus = domain.ReconDisputed
	}
	doc.UpdatedAt = now
	doc.RefreshAging(now)
	consumed[tx.ID] = doc.ID
	return record, nil
}

// ProposeMatch applies an externally proposed match with the proposer's
// own confidence. The proposal passes through the same acceptance
// threshold and consumption check as an automatic match; there is no
// separate trust path.
func (m *Matcher) ProposeMatch(doc *domain.CanonicalDocument, tx *domain.Transaction, confidence float64, consumed map[string]string, now time.Time) (*domain.PaymentRecord, error) {
	if confidence < m.cfg.AcceptanceThreshold {
		return nil, fmt.Errorf("confidence %.2f: %w", confidence, ErrBelowThreshold)
	}
	if holder, ok := consumed[tx.ID]; ok {
		return nil, fmt.Errorf("transaction %s held by document %s: %w", tx.ID, holder, ErrTransactionAlreadyConsumed)
	}

	record := m.newPayment(doc, tx, confidence, domain.MatchProposed, now)
	if err := record.Validate(tx, doc); err != nil {
		return nil, fmt.Errorf("ProposeMatch: %w", err)
	}
	if err := doc.ApplyPayment(record.Amount, tx.ID); err != nil {
		return nil, fmt.Errorf("ProposeMatch: %w", err)
	}
	doc.UpdatedAt = now
	doc.RefreshAging(now)
	consumed[tx.ID] = doc.ID
	return record, nil
}

// pickBest scores every eligible candidate and returns the winner. Ties
// break toward the lower transaction id, which the sorted iteration order
// gives us for free.
func (m *Matcher) pickBest(doc *domain.CanonicalDocument, txIDs []string, txByID map[string]*domain.Transaction, consumed map[string]string, now time.Time) (*domain.Transaction, float64) {
	required := doc.RequiredTransactionType()

	var best *domain.Transaction
	bestScore := -1.0
	for _, id := range txIDs {
		tx := txByID[id]
		if _, taken := consumed[tx.ID]; taken {
			continue
		}
		if tx.Type != required || tx.Currency != doc.Currency {
			continue
		}
		days := daysOutsideWindow(doc, tx)
		if days > m.cfg.DateWindowDays {
			continue
		}

		score := m.cfg.AmountWeight*amountScore(doc.AmountRemaining, tx.Amount) +
			m.cfg.DateWeight*m.dateScore(days) +
			m.cfg.CounterpartyWeight*Similarity(doc.CounterpartyName, tx.Counterparty)
		if score > bestScore {
			best = tx
			bestScore = score
		}
	}
	return best, bestScore
}

func (m *Matcher) newPayment(doc *domain.CanonicalDocument, tx *domain.Transaction, confidence float64, source domain.MatchSource, now time.Time) *domain.PaymentRecord {
	// Deterministic id so a retried commit overwrites rather than
	// duplicates.
	return &domain.PaymentRecord{
		ID:            fmt.Sprintf("pay_%s_%s", doc.ID, tx.ID),
		OwnerID:       doc.OwnerID,
		DocumentID:    doc.ID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Confidence:    confidence,
		Source:        source,
		CreatedAt:     now,
	}
}

// amountScore rates how well a transaction amount covers what the document
// still owes. An epsilon-exact cover scores 1; a clean partial payment is
// still a strong signal; an overshoot is weak since it forces overpayment.
func amountScore(remaining, amount decimal.Decimal) float64 {
	if remaining.Sign() <= 0 {
		return 0
	}
	diff := amount.Sub(remaining)
	if diff.Abs().LessThanOrEqual(domain.AmountEpsilon) {
		return 1.0
	}
	ratio, _ := amount.Div(remaining).Float64()
	if diff.Sign() < 0 {
		return 0.75 + 0.15*ratio
	}
	return 0.3 / ratio
}

// dateScore decays linearly from 1 at zero distance to 0 at the window
// edge.
func (m *Matcher) dateScore(daysOutside int) float64 {
	if m.cfg.DateWindowDays <= 0 {
		return 0
	}
	score := 1.0 - float64(daysOutside)/float64(m.cfg.DateWindowDays)
	if score < 0 {
		return 0
	}
	return score
}

// daysOutsideWindow measures how far the transaction date falls outside
// the document's own date span. A transaction between documentDate and
// dueDate is distance zero.
func daysOutsideWindow(doc *domain.CanonicalDocument, tx *domain.Transaction) int {
	start, end := doc.DocumentDate, doc.DueDate
	if end.Before(start) {
		start, end = end, start
	}
	switch {
	case tx.Date.Before(start):
		return domain.DaysOverdue(tx.Date, start)
	case tx.Date.After(end):
		return domain.DaysOverdue(end, tx.Date)
	default:
		return 0
	}
}

// Similarity is a normalized string similarity in [0,1]: exact match after
// normalization is 1, containment scores 0.8, anything else is an edit
// distance ratio.
func Similarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	dist := levenshtein.DistanceForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
