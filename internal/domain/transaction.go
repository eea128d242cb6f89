package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a bank transaction.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// IsValid checks if the transaction type is a known value.
func (t TransactionType) IsValid() bool {
	return t == TransactionCredit || t == TransactionDebit
}

// Transaction is a bank transaction. It is immutable once created;
// reconciliation only appends association metadata (PaymentRecord rows),
// never mutates amount or date.
type Transaction struct {
	ID           string          `json:"id" firestore:"id"`
	OwnerID      string          `json:"ownerId" firestore:"ownerId"`
	Type         TransactionType `json:"type" firestore:"type"`
	Amount       decimal.Decimal `json:"amount" firestore:"amount"`
	Currency     string          `json:"currency" firestore:"currency"`
	Date         time.Time       `json:"date" firestore:"date"`
	Counterparty string          `json:"counterparty" firestore:"counterparty"`
	Reference    string          `json:"reference,omitempty" firestore:"reference,omitempty"`
	Description  string          `json:"description" firestore:"description"`
	CreatedAt    time.Time       `json:"createdAt" firestore:"createdAt"`
}

// Validate performs basic validation on the transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %q", t.Type)
	}
	if t.Amount.Sign() <= 0 {
		return fmt.Errorf("transaction amount must be positive: %s", t.Amount)
	}
	if t.Currency == "" {
		return fmt.Errorf("transaction currency cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

// PaymentRecord links one transaction to one document. A transaction backs
// at most one active PaymentRecord at any time; the matcher enforces this.
type PaymentRecord struct {
	ID            string          `json:"id" firestore:"id"`
	OwnerID       string          `json:"ownerId" firestore:"ownerId"`
	DocumentID    string          `json:"documentId" firestore:"documentId"`
	TransactionID string          `json:"transactionId" firestore:"transactionId"`
	Amount        decimal.Decimal `json:"amount" firestore:"amount"`
	Currency      string          `json:"currency" firestore:"currency"`
	Confidence    float64         `json:"confidence" firestore:"confidence"`
	Source        MatchSource     `json:"source" firestore:"source"`
	CreatedAt     time.Time       `json:"createdAt" firestore:"createdAt"`
}

// MatchSource records what produced a payment record.
type MatchSource string

const (
	MatchAutomatic MatchSource = "automatic"
	MatchManual    MatchSource = "manual"
	MatchProposed  MatchSource = "proposed"
)

// Validate checks the payment record against its transaction and document.
// Cross-currency matches are rejected here rather than silently converted.
func (p *PaymentRecord) Validate(tx *Transaction, doc *CanonicalDocument) error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("payment amount must be positive: %s", p.Amount)
	}
	if p.Amount.GreaterThan(tx.Amount) {
		return fmt.Errorf("payment amount %s exceeds transaction amount %s", p.Amount, tx.Amount)
	}
	if doc.Currency != tx.Currency {
		return fmt.Errorf("currency mismatch: document is %s, transaction is %s", doc.Currency, tx.Currency)
	}
	return nil
}
