package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mzharov/finrecon/internal/batch"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/repo"
)

// RunSummary reports what one reconciliation run changed.
type RunSummary struct {
	DocumentsExamined int        `json:"documentsExamined"`
	PaymentsCreated   int        `json:"paymentsCreated"`
	DocumentsUpdated  int        `json:"documentsUpdated"`
	Proposals         []Proposal `json:"proposals,omitempty"`
}

// Service loads a matching snapshot from the store, runs the matcher and
// persists the outcome in one batched commit. The consumption map is
// seeded from existing payment records, so replaying a run never assigns
// a transaction twice.
type Service struct {
	matcher      *Matcher
	documents    *repo.DocumentRepo
	transactions *repo.TransactionRepo
	payments     *repo.PaymentRepo
	writer       *batch.Writer
	now          func() time.Time
}

// NewService creates a reconciliation service over one scope.
func NewService(store docstore.Store, scope repo.Scope, cfg Config) *Service {
	return &Service{
		matcher:      NewMatcher(cfg),
		documents:    repo.NewDocumentRepo(store, scope),
		transactions: repo.NewTransactionRepo(store, scope),
		payments:     repo.NewPaymentRepo(store, scope),
		writer:       batch.NewWriter(store),
		now:          time.Now,
	}
}

// Run reconciles every open document of the owner against its
// transactions.
func (s *Service) Run(ctx context.Context, ownerID string) (*RunSummary, error) {
	snap, err := s.snapshot(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	result := s.matcher.Run(*snap, s.now())
	if err := s.persist(ctx, result.Payments, result.Updated); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("ownerId", ownerID).
		Int("documents", len(snap.Documents)).
		Int("payments", len(result.Payments)).
		Int("proposals", len(result.Proposals)).
		Msg("reconciliation run finished")

	return &RunSummary{
		DocumentsExamined: len(snap.Documents),
		PaymentsCreated:   len(result.Payments),
		DocumentsUpdated:  len(result.Updated),
		Proposals:         result.Proposals,
	}, nil
}

// ManualMatch applies an operator-confirmed match between one document and
// one transaction. It bypasses the confidence gate but not the consumption
// invariant.
func (s *Service) ManualMatch(ctx context.Context, documentID, transactionID string) (*domain.PaymentRecord, error) {
	doc, tx, consumed, err := s.loadPair(ctx, documentID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("ManualMatch: %w", err)
	}
	payment, err := s.matcher.ManualMatch(doc, tx, consumed, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, []*domain.PaymentRecord{payment}, []*domain.CanonicalDocument{doc}); err != nil {
		return nil, fmt.Errorf("ManualMatch: %w", err)
	}
	return payment, nil
}

// ProposeMatch applies an externally proposed match with the proposer's
// confidence, subject to the standard acceptance threshold.
func (s *Service) ProposeMatch(ctx context.Context, documentID, transactionID string, confidence float64) (*domain.PaymentRecord, error) {
	doc, tx, consumed, err := s.loadPair(ctx, documentID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("ProposeMatch: %w", err)
	}
	payment, err := s.matcher.ProposeMatch(doc, tx, confidence, consumed, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, []*domain.PaymentRecord{payment}, []*domain.CanonicalDocument{doc}); err != nil {
		return nil, fmt.Errorf("ProposeMatch: %w", err)
	}
	return payment, nil
}

// Candidates scores one document against every eligible transaction and
// returns the proposals without persisting anything.
func (s *Service) Candidates(ctx context.Context, documentID string) ([]Proposal, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("Candidates: %w", err)
	}
	snap, err := s.snapshot(ctx, doc.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("Candidates: %w", err)
	}

	var proposals []Proposal
	for _, tx := range snap.Transactions {
		if _, taken := snap.Consumed[tx.ID]; taken {
			continue
		}
		if tx.Type != doc.RequiredTransactionType() || tx.Currency != doc.Currency {
			continue
		}
		days := daysOutsideWindow(doc, tx)
		if days > s.matcher.cfg.DateWindowDays {
			continue
		}
		score := s.matcher.cfg.AmountWeight*amountScore(doc.AmountRemaining, tx.Amount) +
			s.matcher.cfg.DateWeight*s.matcher.dateScore(days) +
			s.matcher.cfg.CounterpartyWeight*Similarity(doc.CounterpartyName, tx.Counterparty)
		proposals = append(proposals, Proposal{
			DocumentID:    doc.ID,
			TransactionID: tx.ID,
			Confidence:    score,
		})
	}
	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].Confidence != proposals[j].Confidence {
			return proposals[i].Confidence > proposals[j].Confidence
		}
		return proposals[i].TransactionID < proposals[j].TransactionID
	})
	return proposals, nil
}

func (s *Service) snapshot(ctx context.Context, ownerID string) (*Snapshot, error) {
	docs, err := s.documents.ListOpen(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	consumed := make(map[string]string, len(payments))
	for _, p := range payments {
		consumed[p.TransactionID] = p.DocumentID
	}
	return &Snapshot{Documents: docs, Transactions: txs, Consumed: consumed}, nil
}

func (s *Service) loadPair(ctx context.Context, documentID, transactionID string) (*domain.CanonicalDocument, *domain.Transaction, map[string]string, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, nil, nil, err
	}
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, nil, nil, err
	}
	holders, err := s.payments.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, nil, err
	}
	consumed := make(map[string]string, len(holders))
	for _, p := range holders {
		consumed[p.TransactionID] = p.DocumentID
	}
	return doc, tx, consumed, nil
}

func (s *Service) persist(ctx context.Context, payments []*domain.PaymentRecord, updated []*domain.CanonicalDocument) error {
	ops := make([]docstore.WriteOp, 0, len(payments)+len(updated))
	for _, p := range payments {
		ops = append(ops, s.payments.CreateOp(p))
	}
	for _, doc := range updated {
		ops = append(ops, s.documents.SetOp(doc))
	}
	if len(ops) == 0 {
		return nil
	}
	_, err := s.writer.Commit(ctx, ops)
	return err
}
