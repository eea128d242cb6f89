package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzharov/finrecon/internal/domain"
)

var matchNow = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func invoice(id, total string) *domain.CanonicalDocument {
	t := dec(total)
	return &domain.CanonicalDocument{
		ID:                   id,
		OwnerID:              "u1",
		Direction:            domain.DirectionOutgoing,
		DocumentType:         "invoice",
		CounterpartyName:     "Acme Corp",
		DocumentDate:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:              time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Total:                t,
		Currency:             "USD",
		PaymentStatus:        domain.PaymentUnpaid,
		AmountRemaining:      t,
		ReconciliationStatus: domain.ReconUnmatched,
	}
}

func credit(id, amount string, date time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:           id,
		OwnerID:      "u1",
		Type:         domain.TransactionCredit,
		Amount:       dec(amount),
		Currency:     "USD",
		Date:         date,
		Counterparty: "Acme Corp",
	}
}

func inWindow() time.Time {
	return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
}

func TestRun_ExactMatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "1000.00")
	tx := credit("t1", "1000.00", inWindow())

	res := m.Run(Snapshot{
		Documents:    []*domain.CanonicalDocument{doc},
		Transactions: []*domain.Transaction{tx},
	}, matchNow)

	require.Len(t, res.Payments, 1)
	p := res.Payments[0]
	assert.Equal(t, "pay_d1_t1", p.ID)
	assert.Equal(t, domain.MatchAutomatic, p.Source)
	assert.InDelta(t, 1.0, p.Confidence, 0.001)

	assert.Equal(t, domain.PaymentPaid, doc.PaymentStatus)
	assert.Equal(t, domain.ReconMatched, doc.ReconciliationStatus)
	assert.True(t, doc.AmountRemaining.IsZero())
}

func TestRun_PartialPayment(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "1000.00")
	tx := credit("t1", "400.00", inWindow())

	res := m.Run(Snapshot{
		Documents:    []*domain.CanonicalDocument{doc},
		Transactions: []*domain.Transaction{tx},
	}, matchNow)

	require.Len(t, res.Payments, 1)
	assert.Equal(t, domain.PaymentPartial, doc.PaymentStatus)
	assert.Equal(t, domain.ReconPartial, doc.ReconciliationStatus)
	assert.True(t, doc.AmountRemaining.Equal(dec("600.00")), "remaining %s", doc.AmountRemaining)
}

func TestRun_TwoPartialsCoverOneInvoice(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "1000.00")
	txs := []*domain.Transaction{
		credit("t1", "600.00", inWindow()),
		credit("t2", "400.00", inWindow()),
	}

	res := m.Run(Snapshot{Documents: []*domain.CanonicalDocument{doc}, Transactions: txs}, matchNow)

	require.Len(t, res.Payments, 2)
	assert.Equal(t, domain.PaymentPaid, doc.PaymentStatus)
	assert.Equal(t, domain.ReconMatched, doc.ReconciliationStatus)
}

func TestRun_TransactionNeverConsumedTwice(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	docs := []*domain.CanonicalDocument{
		invoice("d2", "500.00"),
		invoice("d1", "500.00"),
	}
	tx := credit("t1", "500.00", inWindow())

	res := m.Run(Snapshot{Documents: docs, Transactions: []*domain.Transaction{tx}}, matchNow)

	require.Len(t, res.Payments, 1)
	// Documents are processed in id order, so d1 wins the transaction.
	assert.Equal(t, "d1", res.Payments[0].DocumentID)
}

func TestRun_SeededConsumptionRespected(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "500.00")
	tx := credit("t1", "500.00", inWindow())

	res := m.Run(Snapshot{
		Documents:    []*domain.CanonicalDocument{doc},
		Transactions: []*domain.Transaction{tx},
		Consumed:     map[string]string{"t1": "d0"},
	}, matchNow)

	assert.Empty(t, res.Payments)
	assert.Equal(t, domain.ReconUnmatched, doc.ReconciliationStatus)
}

func TestRun_TieBreaksByTransactionID(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "500.00")
	txs := []*domain.Transaction{
		credit("t9", "500.00", inWindow()),
		credit("t2", "500.00", inWindow()),
	}

	res := m.Run(Snapshot{Documents: []*domain.CanonicalDocument{doc}, Transactions: txs}, matchNow)

	require.Len(t, res.Payments, 1)
	assert.Equal(t, "t2", res.Payments[0].TransactionID)
}

func TestRun_DeterministicAcrossInputOrder(t *testing.T) {
	build := func(docOrder, txOrder []int) *Result {
		docIDs := []string{"d1", "d2", "d3"}
		amounts := []string{"100.00", "250.00", "990.00"}
		var docs []*domain.CanonicalDocument
		for _, i := range docOrder {
			docs = append(docs, invoice(docIDs[i], amounts[i]))
		}
		txIDs := []string{"t1", "t2", "t3"}
		var txs []*domain.Transaction
		for _, i := range txOrder {
			txs = append(txs, credit(txIDs[i], amounts[i], inWindow()))
		}
		return NewMatcher(DefaultConfig()).Run(Snapshot{Documents: docs, Transactions: txs}, matchNow)
	}

	a := build([]int{0, 1, 2}, []int{0, 1, 2})
	b := build([]int{2, 0, 1}, []int{1, 2, 0})

	require.Equal(t, len(a.Payments), len(b.Payments))
	for i := range a.Payments {
		assert.Equal(t, a.Payments[i].ID, b.Payments[i].ID)
	}
}

func TestRun_FiltersCandidates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Transaction)
	}{
		{"wrong currency", func(tx *domain.Transaction) { tx.Currency = "EUR" }},
		{"wrong direction", func(tx *domain.Transaction) { tx.Type = domain.TransactionDebit }},
		{"outside date window", func(tx *domain.Transaction) {
			tx.Date = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := invoice("d1", "500.00")
			tx := credit("t1", "500.00", inWindow())
			tt.mutate(tx)

			res := NewMatcher(DefaultConfig()).Run(Snapshot{
				Documents:    []*domain.CanonicalDocument{doc},
				Transactions: []*domain.Transaction{tx},
			}, matchNow)

			assert.Empty(t, res.Payments)
			assert.Empty(t, res.Proposals)
		})
	}
}

func TestRun_WeakCandidateSurfacedAsProposal(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	doc := invoice("d1", "1000.00")
	tx := credit("t1", "400.00", time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC))
	tx.Counterparty = "Completely Different Vendor Ltd"

	res := m.Run(Snapshot{
		Documents:    []*domain.CanonicalDocument{doc},
		Transactions: []*domain.Transaction{tx},
	}, matchNow)

	assert.Empty(t, res.Payments)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "t1", res.Proposals[0].TransactionID)
	assert.Less(t, res.Proposals[0].Confidence, m.cfg.AcceptanceThreshold)
	assert.Equal(t, domain.ReconUnmatched, doc.ReconciliationStatus)
}

func TestManualMatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	t.Run("bypasses scoring", func(t *testing.T) {
		doc := invoice("d1", "1000.00")
		tx := credit("t1", "400.00", inWindow())
		tx.Counterparty = "Unrelated Name"

		consumed := map[string]string{}
		record, err := m.ManualMatch(doc, tx, consumed, matchNow)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchManual, record.Source)
		assert.Equal(t, domain.PaymentPartial, doc.PaymentStatus)
		assert.Equal(t, "d1", consumed["t1"])
	})

	t.Run("rejects consumed transaction", func(t *testing.T) {
		doc := invoice("d1", "1000.00")
		tx := credit("t1", "400.00", inWindow())

		_, err := m.ManualMatch(doc, tx, map[string]string{"t1": "d0"}, matchNow)
		assert.ErrorIs(t, err, ErrTransactionAlreadyConsumed)
	})

	t.Run("conflict with automatic match disputes the document", func(t *testing.T) {
		doc := invoice("d1", "500.00")
		auto := credit("t1", "500.00", inWindow())
		consumed := map[string]string{}

		res := m.Run(Snapshot{
			Documents:    []*domain.CanonicalDocument{doc},
			Transactions: []*domain.Transaction{auto},
		}, matchNow)
		require.Len(t, res.Payments, 1)
		require.Equal(t, domain.ReconMatched, doc.ReconciliationStatus)
		consumed["t1"] = "d1"

		manual := credit("t2", "100.00", inWindow())
		_, err := m.ManualMatch(doc, manual, consumed, matchNow)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconDisputed, doc.ReconciliationStatus)
	})
}

func TestProposeMatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	t.Run("accepted above threshold", func(t *testing.T) {
		doc := invoice("d1", "500.00")
		tx := credit("t1", "500.00", inWindow())

		record, err := m.ProposeMatch(doc, tx, 0.85, map[string]string{}, matchNow)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchProposed, record.Source)
		assert.InDelta(t, 0.85, record.Confidence, 0.001)
	})

	t.Run("rejected below threshold", func(t *testing.T) {
		doc := invoice("d1", "500.00")
		tx := credit("t1", "500.00", inWindow())

		_, err := m.ProposeMatch(doc, tx, 0.5, map[string]string{}, matchNow)
		assert.ErrorIs(t, err, ErrBelowThreshold)
	})

	t.Run("rejected when consumed", func(t *testing.T) {
		doc := invoice("d1", "500.00")
		tx := credit("t1", "500.00", inWindow())

		_, err := m.ProposeMatch(doc, tx, 0.9, map[string]string{"t1": "d0"}, matchNow)
		assert.ErrorIs(t, err, ErrTransactionAlreadyConsumed)
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Acme Corp", "Acme Corp", 1.0, 1.0},
		{"ACME  corp", "acme corp", 1.0, 1.0},
		{"Acme Corp", "ACME CORP PAYMENT", 0.8, 0.8},
		{"Acme Corp", "Acme Crop", 0.6, 0.95},
		{"Acme Corp", "Zenith Holdings", 0.0, 0.35},
		{"", "Acme", 0.0, 0.0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %.2f, want in [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
