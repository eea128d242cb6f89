package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
)

// TransactionRepo stores bank transactions.
type TransactionRepo struct {
	store docstore.Store
	scope Scope
}

// NewTransactionRepo creates a transaction repository in the given scope.
func NewTransactionRepo(store docstore.Store, scope Scope) *TransactionRepo {
	return &TransactionRepo{store: store, scope: scope}
}

func (r *TransactionRepo) col() docstore.Collection {
	return r.store.Collection(r.scope.Col(ColTransactions))
}

// Save creates or overwrites the transaction.
func (r *TransactionRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("Save: transaction has no id")
	}
	if err := r.col().Set(ctx, tx.ID, transactionToDoc(tx)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Get loads one transaction by id.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	raw, err := r.col().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	tx, err := transactionFromDoc(id, raw)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return tx, nil
}

// ListByOwner returns the owner's transactions sorted by id.
func (r *TransactionRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Transaction, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "ownerId", Value: ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	txs := make([]*domain.Transaction, 0, len(raws))
	for _, raw := range raws {
		tx, err := transactionFromDoc(getString(raw, "id"), raw)
		if err != nil {
			return nil, fmt.Errorf("ListByOwner: %w", err)
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs, nil
}

// CreateOp returns the batched write that inserts this transaction.
func (r *TransactionRepo) CreateOp(tx *domain.Transaction) docstore.WriteOp {
	return docstore.WriteOp{
		Kind:       docstore.OpCreate,
		Collection: r.scope.Col(ColTransactions),
		ID:         tx.ID,
		Doc:        transactionToDoc(tx),
	}
}

func transactionToDoc(t *domain.Transaction) docstore.Doc {
	return docstore.Doc{
		"id":           t.ID,
		"ownerId":      t.OwnerID,
		"type":         string(t.Type),
		"date":         t.Date,
		"amount":       t.Amount.String(),
		"currency":     t.Currency,
		"counterparty": t.Counterparty,
		"reference":    t.Reference,
		"description":  t.Description,
		"createdAt":    t.CreatedAt,
	}
}

func transactionFromDoc(id string, raw docstore.Doc) (*domain.Transaction, error) {
	t := &domain.Transaction{
		ID:           id,
		OwnerID:      getString(raw, "ownerId"),
		Type:         domain.TransactionType(getString(raw, "type")),
		Date:         getTime(raw, "date"),
		Currency:     getString(raw, "currency"),
		Counterparty: getString(raw, "counterparty"),
		Reference:    getString(raw, "reference"),
		Description:  getString(raw, "description"),
		CreatedAt:    getTime(raw, "createdAt"),
	}
	var err error
	if t.Amount, err = getDecimal(raw, "amount"); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return t, nil
}
