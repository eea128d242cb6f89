// Package domain holds the canonical financial entities shared by the
// import, normalization and reconciliation layers. These structs (and their
// field names and enum values) are the durable contract read by other
// collaborators, so changes here are compatibility-sensitive.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether a document represents money owed to us or by us.
type Direction string

const (
	// DirectionOutgoing is an invoice we issued (money comes in).
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming is a bill we received (money goes out).
	DirectionIncoming Direction = "incoming"
)

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionOutgoing || d == DirectionIncoming
}

// PaymentStatus tracks how much of a document's total has been settled.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentOverpaid PaymentStatus = "overpaid"
	PaymentVoid     PaymentStatus = "void"
)

// ReconciliationStatus tracks the matching lifecycle of a document.
type ReconciliationStatus string

const (
	ReconUnmatched ReconciliationStatus = "unmatched"
	ReconMatched   ReconciliationStatus = "matched"
	ReconPartial   ReconciliationStatus = "partial"
	ReconDisputed  ReconciliationStatus = "disputed"
)

// AmountEpsilon is the tolerance for monetary comparisons. Financial
// documents routinely carry sub-cent rounding discrepancies, so equality
// checks on money are always epsilon-tolerant.
var AmountEpsilon = decimal.New(1, -2) // 0.01

// LineItem is a single line on an invoice or bill.
type LineItem struct {
	Description string          `json:"description" firestore:"description"`
	Quantity    decimal.Decimal `json:"quantity" firestore:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" firestore:"unitPrice"`
	Amount      decimal.Decimal `json:"amount" firestore:"amount"`
}

// CanonicalDocument is a normalized invoice or bill, independent of the
// file format it was imported from. It is created once per source row (or
// AI-extracted document) and mutated only by the reconciliation matcher
// (payment/match fields) and the session replicator (full reset).
type CanonicalDocument struct {
	ID        string    `json:"id" firestore:"id"`
	OwnerID   string    `json:"ownerId" firestore:"ownerId"`
	Direction Direction `json:"direction" firestore:"direction"`

	DocumentType      string `json:"documentType" firestore:"documentType"`
	CounterpartyName  string `json:"counterpartyName" firestore:"counterpartyName"`
	CounterpartyEmail string `json:"counterpartyEmail,omitempty" firestore:"counterpartyEmail,omitempty"`
	DocumentNumber    string `json:"documentNumber" firestore:"documentNumber"`

	DocumentDate time.Time `json:"documentDate" firestore:"documentDate"`
	DueDate      time.Time `json:"dueDate" firestore:"dueDate"`

	Subtotal  decimal.Decimal `json:"subtotal" firestore:"subtotal"`
	TaxRate   decimal.Decimal `json:"taxRate" firestore:"taxRate"`
	TaxAmount decimal.Decimal `json:"taxAmount" firestore:"taxAmount"`
	Discount  decimal.Decimal `json:"discount" firestore:"discount"`
	Total     decimal.Decimal `json:"total" firestore:"total"`
	Currency  string          `json:"currency" firestore:"currency"`

	LineItems []LineItem `json:"lineItems" firestore:"lineItems"`

	PaymentStatus   PaymentStatus   `json:"paymentStatus" firestore:"paymentStatus"`
	AmountPaid      decimal.Decimal `json:"amountPaid" firestore:"amountPaid"`
	AmountRemaining decimal.Decimal `json:"amountRemaining" firestore:"amountRemaining"`

	ReconciliationStatus  ReconciliationStatus `json:"reconciliationStatus" firestore:"reconciliationStatus"`
	MatchedTransactionIDs []string             `json:"matchedTransactionIds" firestore:"matchedTransactionIds"`

	AgingBucket AgingBucket `json:"agingBucket" firestore:"agingBucket"`
	DaysOverdue int         `json:"daysOverdue" firestore:"daysOverdue"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// RequiredTransactionType returns the transaction direction that settles
// this document: credits settle outgoing invoices, debits settle incoming
// bills.
func (d *CanonicalDocument) RequiredTransactionType() TransactionType {
	if d.Direction == DirectionOutgoing {
		return TransactionCredit
	}
	return TransactionDebit
}

// ApplyPayment records amount against the document and recomputes the
// payment fields. The amountRemaining invariant (total - amountPaid, floored
// at zero unless overpaid) is maintained here and nowhere else.
func (d *CanonicalDocument) ApplyPayment(amount decimal.Decimal, transactionID string) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("ApplyPayment: amount must be positive, got %s", amount)
	}
	d.AmountPaid = d.AmountPaid.Add(amount)
	d.AmountRemaining = d.Total.Sub(d.AmountPaid)

	switch {
	case d.AmountRemaining.Abs().LessThanOrEqual(AmountEpsilon):
		d.AmountRemaining = decimal.Zero
		d.PaymentStatus = PaymentPaid
	case d.AmountRemaining.Sign() < 0:
		d.PaymentStatus = PaymentOverpaid
	default:
		d.PaymentStatus = PaymentPartial
	}

	if !containsString(d.MatchedTransactionIDs, transactionID) {
		d.MatchedTransactionIDs = append(d.MatchedTransactionIDs, transactionID)
	}

	if d.PaymentStatus == PaymentPaid || d.PaymentStatus == PaymentOverpaid {
		d.ReconciliationStatus = ReconMatched
	} else {
		d.ReconciliationStatus = ReconPartial
	}
	return nil
}

// ResetPaymentState restores the document to its initial unpaid, unmatched
// state. Used by the session replicator's reset operation.
func (d *CanonicalDocument) ResetPaymentState() {
	d.PaymentStatus = PaymentUnpaid
	d.AmountPaid = decimal.Zero
	d.AmountRemaining = d.Total
	d.ReconciliationStatus = ReconUnmatched
	d.MatchedTransactionIDs = nil
}

// RefreshAging recomputes the aging fields against now. Paid and void
// documents always report current/0.
func (d *CanonicalDocument) RefreshAging(now time.Time) {
	if d.PaymentStatus == PaymentPaid || d.PaymentStatus == PaymentVoid || d.PaymentStatus == PaymentOverpaid {
		d.DaysOverdue = 0
		d.AgingBucket = AgingCurrent
		return
	}
	d.DaysOverdue = DaysOverdue(d.DueDate, now)
	d.AgingBucket = BucketFor(d.DaysOverdue)
}

// Validate performs basic sanity checks on a freshly normalized document.
func (d *CanonicalDocument) Validate() error {
	if !d.Direction.IsValid() {
		return fmt.Errorf("invalid direction: %q", d.Direction)
	}
	if d.CounterpartyName == "" {
		return fmt.Errorf("counterparty name cannot be empty")
	}
	if d.Currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if d.Total.Sign() < 0 {
		return fmt.Errorf("total cannot be negative: %s", d.Total)
	}
	return nil
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
