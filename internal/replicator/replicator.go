// Package replicator clones the master dataset into isolated session
// namespaces and resets sessions back to their canonical initial state.
// Cloning rewrites every string field by literal substring replacement of
// the master owner id, so references embedded inside URLs, descriptions
// and foreign keys stay consistent inside the session.
package replicator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mzharov/finrecon/internal/batch"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/repo"
)

// CloneConflictError reports a session id already claimed for a different
// master owner.
type CloneConflictError struct {
	SessionID     string
	ExistingOwner string
}

func (e *CloneConflictError) Error() string {
	return fmt.Sprintf("session %s already cloned from owner %s", e.SessionID, e.ExistingOwner)
}

// Replicator clones and resets session datasets.
type Replicator struct {
	store  docstore.Store
	writer *batch.Writer
}

// New creates a replicator over the store.
func New(store docstore.Store) *Replicator {
	return &Replicator{store: store, writer: batch.NewWriter(store)}
}

// SessionOwner derives the session-scoped owner id. It is a pure function
// of the session id so every clone run lands on the same identifiers.
func SessionOwner(sessionID string) string {
	return "session_" + sessionID
}

// Clone copies every master collection into the session namespace,
// rewriting identifiers. Re-running with the same session id overwrites
// the same target documents rather than accumulating duplicates, so an
// interrupted clone is finished by running it again.
func (r *Replicator) Clone(ctx context.Context, masterOwner, sessionID string) error {
	if masterOwner == "" || sessionID == "" {
		return fmt.Errorf("Clone: master owner and session id are required")
	}
	log := logger.FromContext(ctx)

	sessions := r.store.Collection(repo.ColSessions)
	if existing, err := sessions.Get(ctx, sessionID); err == nil {
		if owner := existing["masterOwner"]; owner != masterOwner {
			return &CloneConflictError{SessionID: sessionID, ExistingOwner: fmt.Sprint(owner)}
		}
	}

	if err := sessions.Set(ctx, sessionID, docstore.Doc{
		"id":          sessionID,
		"masterOwner": masterOwner,
		"owner":       SessionOwner(sessionID),
		"status":      "cloning",
		"createdAt":   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("Clone: record session: %w", err)
	}

	// Collections clone in parallel; the chunk sequence inside each one
	// stays sequential.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, name := range repo.MasterCollections {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := r.cloneCollection(ctx, name, masterOwner, sessionID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("Clone: collection %s: %w", name, err)
				}
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	if err := sessions.Set(ctx, sessionID, docstore.Doc{
		"id":          sessionID,
		"masterOwner": masterOwner,
		"owner":       SessionOwner(sessionID),
		"status":      "ready",
		"createdAt":   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("Clone: record session: %w", err)
	}

	log.Info().Str("session", sessionID).Str("masterOwner", masterOwner).Msg("session cloned")
	return nil
}

func (r *Replicator) cloneCollection(ctx context.Context, name, masterOwner, sessionID string) error {
	raws, err := r.store.Collection(name).Query(ctx, docstore.Filter{Field: "ownerId", Value: masterOwner})
	if err != nil {
		return err
	}
	if len(raws) == 0 {
		return nil
	}

	rewrite := func(s string) string {
		return strings.ReplaceAll(s, masterOwner, SessionOwner(sessionID))
	}
	target := repo.Session(sessionID).Col(name)

	ops := make([]docstore.WriteOp, 0, len(raws))
	for _, raw := range raws {
		masterID := idOf(raw)
		if masterID == "" {
			continue
		}
		newID := DeriveID(masterID, masterOwner, sessionID)

		v, err := docstore.ValueOf(map[string]any(raw))
		if err != nil {
			return fmt.Errorf("document %s: %w", masterID, err)
		}
		rewritten := v.MapStrings(rewrite).Interface().(map[string]any)
		rewritten["id"] = newID

		ops = append(ops, docstore.WriteOp{
			Kind:       docstore.OpSet,
			Collection: target,
			ID:         newID,
			Doc:        rewritten,
		})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })

	_, err = r.writer.Commit(ctx, ops)
	return err
}

// DeriveID maps a master document id into the session namespace. When the
// master owner appears inside the id, substring substitution keeps the id
// shape; otherwise the session id is prefixed. Both forms are pure
// functions of (masterID, sessionID), which is what makes re-cloning
// idempotent.
func DeriveID(masterID, masterOwner, sessionID string) string {
	if strings.Contains(masterID, masterOwner) {
		return strings.ReplaceAll(masterID, masterOwner, SessionOwner(sessionID))
	}
	return sessionID + "_" + masterID
}

// Reset restores every cloned document to unpaid/unmatched with zero
// amountPaid and deletes the session's payment records. The master dataset
// is never touched. Reset can run any number of times.
func (r *Replicator) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("Reset: session id is required")
	}
	scope := repo.Session(sessionID)
	log := logger.FromContext(ctx)

	docCol := r.store.Collection(scope.Col(repo.ColDocuments))
	raws, err := docCol.Query(ctx)
	if err != nil {
		return fmt.Errorf("Reset: list documents: %w", err)
	}

	var ops []docstore.WriteOp
	for _, raw := range raws {
		id := idOf(raw)
		if id == "" {
			continue
		}
		raw["paymentStatus"] = "unpaid"
		raw["reconciliationStatus"] = "unmatched"
		raw["amountPaid"] = "0"
		raw["amountRemaining"] = raw["total"]
		raw["matchedTransactionIds"] = []any{}
		ops = append(ops, docstore.WriteOp{
			Kind:       docstore.OpSet,
			Collection: scope.Col(repo.ColDocuments),
			ID:         id,
			Doc:        raw,
		})
	}

	paymentIDs, err := r.store.Collection(scope.Col(repo.ColPayments)).IDs(ctx)
	if err != nil {
		return fmt.Errorf("Reset: list payments: %w", err)
	}
	sort.Strings(paymentIDs)
	for _, id := range paymentIDs {
		ops = append(ops, docstore.WriteOp{
			Kind:       docstore.OpDelete,
			Collection: scope.Col(repo.ColPayments),
			ID:         id,
		})
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Collection != ops[j].Collection {
			return ops[i].Collection < ops[j].Collection
		}
		return ops[i].ID < ops[j].ID
	})

	if _, err := r.writer.Commit(ctx, ops); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}

	log.Info().Str("session", sessionID).Int("documents", len(raws)).Int("paymentsDeleted", len(paymentIDs)).Msg("session reset")
	return nil
}

func idOf(raw docstore.Doc) string {
	if id, ok := raw["id"].(string); ok {
		return id
	}
	return ""
}
