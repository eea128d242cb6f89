package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
)

// DocumentRepo stores canonical documents.
type DocumentRepo struct {
	store docstore.Store
	scope Scope
}

// NewDocumentRepo creates a document repository in the given scope.
func NewDocumentRepo(store docstore.Store, scope Scope) *DocumentRepo {
	return &DocumentRepo{store: store, scope: scope}
}

func (r *DocumentRepo) col() docstore.Collection {
	return r.store.Collection(r.scope.Col(ColDocuments))
}

// Save creates or overwrites the document.
func (r *DocumentRepo) Save(ctx context.Context, doc *domain.CanonicalDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("Save: document has no id")
	}
	if err := r.col().Set(ctx, doc.ID, documentToDoc(doc)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Get loads one document by id.
func (r *DocumentRepo) Get(ctx context.Context, id string) (*domain.CanonicalDocument, error) {
	raw, err := r.col().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	doc, err := documentFromDoc(id, raw)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return doc, nil
}

// ListByOwner returns the owner's documents sorted by id.
func (r *DocumentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.CanonicalDocument, error) {
	raws, err := r.col().Query(ctx, docstore.Filter{Field: "ownerId", Value: ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	return documentsFromDocs(raws)
}

// ListOpen returns the owner's documents that still need reconciliation
// (unmatched or partially matched), sorted by id.
func (r *DocumentRepo) ListOpen(ctx context.Context, ownerID string) ([]*domain.CanonicalDocument, error) {
	var open []*domain.CanonicalDocument
	for _, status := range []domain.ReconciliationStatus{domain.ReconUnmatched, domain.ReconPartial} {
		raws, err := r.col().Query(ctx,
			docstore.Filter{Field: "ownerId", Value: ownerID},
			docstore.Filter{Field: "reconciliationStatus", Value: string(status)},
		)
		if err != nil {
			return nil, fmt.Errorf("ListOpen: %w", err)
		}
		docs, err := documentsFromDocs(raws)
		if err != nil {
			return nil, fmt.Errorf("ListOpen: %w", err)
		}
		open = append(open, docs...)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, nil
}

// CreateOp returns the batched write that inserts this document.
func (r *DocumentRepo) CreateOp(doc *domain.CanonicalDocument) docstore.WriteOp {
	return docstore.WriteOp{
		Kind:       docstore.OpCreate,
		Collection: r.scope.Col(ColDocuments),
		ID:         doc.ID,
		Doc:        documentToDoc(doc),
	}
}

// SetOp returns the batched write that upserts this document.
func (r *DocumentRepo) SetOp(doc *domain.CanonicalDocument) docstore.WriteOp {
	return docstore.WriteOp{
		Kind:       docstore.OpSet,
		Collection: r.scope.Col(ColDocuments),
		ID:         doc.ID,
		Doc:        documentToDoc(doc),
	}
}

func documentsFromDocs(raws []docstore.Doc) ([]*domain.CanonicalDocument, error) {
	docs := make([]*domain.CanonicalDocument, 0, len(raws))
	for _, raw := range raws {
		doc, err := documentFromDoc(getString(raw, "id"), raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func documentToDoc(d *domain.CanonicalDocument) docstore.Doc {
	items := make([]any, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		items = append(items, map[string]any{
			"description": li.Description,
			"quantity":    li.Quantity.String(),
			"unitPrice":   li.UnitPrice.String(),
			"amount":      li.Amount.String(),
		})
	}

	return docstore.Doc{
		"id":                    d.ID,
		"ownerId":               d.OwnerID,
		"direction":             string(d.Direction),
		"documentType":          d.DocumentType,
		"counterpartyName":      d.CounterpartyName,
		"counterpartyEmail":     d.CounterpartyEmail,
		"documentNumber":        d.DocumentNumber,
		"documentDate":          d.DocumentDate,
		"dueDate":               d.DueDate,
		"subtotal":              d.Subtotal.String(),
		"taxRate":               d.TaxRate.String(),
		"taxAmount":             d.TaxAmount.String(),
		"discount":              d.Discount.String(),
		"total":                 d.Total.String(),
		"currency":              d.Currency,
		"lineItems":             items,
		"paymentStatus":         string(d.PaymentStatus),
		"amountPaid":            d.AmountPaid.String(),
		"amountRemaining":       d.AmountRemaining.String(),
		"reconciliationStatus":  string(d.ReconciliationStatus),
		"matchedTransactionIds": d.MatchedTransactionIDs,
		"agingBucket":           string(d.AgingBucket),
		"daysOverdue":           d.DaysOverdue,
		"createdAt":             d.CreatedAt,
		"updatedAt":             d.UpdatedAt,
	}
}

func documentFromDoc(id string, raw docstore.Doc) (*domain.CanonicalDocument, error) {
	d := &domain.CanonicalDocument{
		ID:                    id,
		OwnerID:               getString(raw, "ownerId"),
		Direction:             domain.Direction(getString(raw, "direction")),
		DocumentType:          getString(raw, "documentType"),
		CounterpartyName:      getString(raw, "counterpartyName"),
		CounterpartyEmail:     getString(raw, "counterpartyEmail"),
		DocumentNumber:        getString(raw, "documentNumber"),
		DocumentDate:          getTime(raw, "documentDate"),
		DueDate:               getTime(raw, "dueDate"),
		Currency:              getString(raw, "currency"),
		PaymentStatus:         domain.PaymentStatus(getString(raw, "paymentStatus")),
		ReconciliationStatus:  domain.ReconciliationStatus(getString(raw, "reconciliationStatus")),
		MatchedTransactionIDs: getStrings(raw, "matchedTransactionIds"),
		AgingBucket:           domain.AgingBucket(getString(raw, "agingBucket")),
		DaysOverdue:           getInt(raw, "daysOverdue"),
		CreatedAt:             getTime(raw, "createdAt"),
		UpdatedAt:             getTime(raw, "updatedAt"),
	}

	var err error
	if d.Subtotal, err = getDecimal(raw, "subtotal"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.TaxRate, err = getDecimal(raw, "taxRate"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.TaxAmount, err = getDecimal(raw, "taxAmount"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.Discount, err = getDecimal(raw, "discount"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.Total, err = getDecimal(raw, "total"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.AmountPaid, err = getDecimal(raw, "amountPaid"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if d.AmountRemaining, err = getDecimal(raw, "amountRemaining"); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	if items, ok := raw["lineItems"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			li := domain.LineItem{Description: getString(m, "description")}
			if li.Quantity, err = getDecimal(m, "quantity"); err != nil {
				return nil, fmt.Errorf("document %s: line item: %w", id, err)
			}
			if li.UnitPrice, err = getDecimal(m, "unitPrice"); err != nil {
				return nil, fmt.Errorf("document %s: line item: %w", id, err)
			}
			if li.Amount, err = getDecimal(m, "amount"); err != nil {
				return nil, fmt.Errorf("document %s: line item: %w", id, err)
			}
			d.LineItems = append(d.LineItems, li)
		}
	}
	return d, nil
}
