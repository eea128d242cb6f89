package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
)

// PaymentRepo stores payment records, the links between transactions and
// the documents they settle.
type PaymentRepo struct {
	store docstore.Store
	scope Scope
}

// NewPaymentRepo creates a payment repository in the given scope.
func NewPaymentRepo(store docstore.Store, scope Scope) *PaymentRepo {
	return &PaymentRepo{store: store, scope: scope}
}

func (r *PaymentRepo) col() docstore.Collection {
	return r.store.Collection(r.scope.Col(ColPayments))
}

// Save creates or overwrites the payment record.
func (r *PaymentRepo) Save(ctx context.Context, p *domain.PaymentRecord) error {
	if p.ID == "" {
		return fmt.Errorf("Save: payment record has no id")
	}
	if err := r.col().Set(ctx, p.ID, paymentToDoc(p)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's payment records sorted by id.
func (r *PaymentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.PaymentRecord, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "ownerId", Value: ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	return paymentsFromDocs(raws)
}

// ListByTransaction returns payment records backed by the transaction. More
// than one result means the consumption invariant was violated somewhere.
func (r *PaymentRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.PaymentRecord, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "transactionId", Value: transactionID})
	if err != nil {
		return nil, fmt.Errorf("ListByTransaction: %w", err)
	}
	return paymentsFromDocs(raws)
}

// CreateOp returns the batched write that inserts this payment record.
func (r *PaymentRepo) CreateOp(p *domain.PaymentRecord) docstore.WriteOp {
	return docstore.WriteOp{
		Kind:       docstore.OpCreate,
		Collection: r.scope.Col(ColPayments),
		ID:         p.ID,
		Doc:        paymentToDoc(p),
	}
}

// DeleteOp returns the batched write that removes this payment record.
func (r *PaymentRepo) DeleteOp(id string) docstore.WriteOp {
	return docstore.WriteOp{
		Kind:       docstore.OpDelete,
		Collection: r.scope.Col(ColPayments),
		ID:         id,
	}
}

func paymentsFromDocs(raws []docstore.Doc) ([]*domain.PaymentRecord, error) {
	records := make([]*domain.PaymentRecord, 0, len(raws))
	for _, raw := range raws {
		p, err := paymentFromDoc(getString(raw, "id"), raw)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func paymentToDoc(p *domain.PaymentRecord) docstore.Doc {
	return docstore.Doc{
		"id":            p.ID,
		"ownerId":       p.OwnerID,
		"documentId":    p.DocumentID,
		"transactionId": p.TransactionID,
		"amount":        p.Amount.String(),
		"currency":      p.Currency,
		"confidence":    p.Confidence,
		"source":        string(p.Source),
		"createdAt":     p.CreatedAt,
	}
}

func paymentFromDoc(id string, raw docstore.Doc) (*domain.PaymentRecord, error) {
	p := &domain.PaymentRecord{
		ID:            id,
		OwnerID:       getString(raw, "ownerId"),
		DocumentID:    getString(raw, "documentId"),
		TransactionID: getString(raw, "transactionId"),
		Currency:      getString(raw, "currency"),
		Confidence:    getFloat(raw, "confidence"),
		Source:        domain.MatchSource(getString(raw, "source")),
		CreatedAt:     getTime(raw, "createdAt"),
	}
	var err error
	if p.Amount, err = getDecimal(raw, "amount"); err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	return p, nil
}
