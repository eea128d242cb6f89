// Package batch commits arbitrarily large write sets against the document
// store, which only accepts 500 operations per atomic batch. Writes are
// chunked and committed sequentially; a failure stops the run and reports
// exactly how far it got so the caller can resume.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/logger"
)

// WriteError reports a partially committed run. Every chunk before
// FailedChunk was committed atomically; the failing chunk and everything
// after it was not written at all.
type WriteError struct {
	// Committed is the number of operations durably written.
	Committed int
	// FailedChunk is the zero-based index of the chunk that failed.
	FailedChunk int
	// Err is the store error for the failing chunk.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("batch write failed at chunk %d after %d committed ops: %v", e.FailedChunk, e.Committed, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer chunks and commits write sets.
type Writer struct {
	store     docstore.Store
	chunkSize int
}

// NewWriter creates a writer over the given store.
func NewWriter(store docstore.Store) *Writer {
	return &Writer{store: store, chunkSize: docstore.MaxBatchOps}
}

// Commit writes all ops in chunks of up to 500, in order. It returns the
// number of operations committed. On failure the returned error is a
// *WriteError and the count covers only the fully committed chunks; nothing
// past the failing chunk was attempted.
func (w *Writer) Commit(ctx context.Context, ops []docstore.WriteOp) (int, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	log := logger.FromContext(ctx)

	committed := 0
	for chunk := 0; committed < len(ops); chunk++ {
		end := committed + w.chunkSize
		if end > len(ops) {
			end = len(ops)
		}

		if err := w.store.ApplyBatch(ctx, ops[committed:end]); err != nil {
			log.Error().
				Int("chunk", chunk).
				Int("committed", committed).
				Int("total", len(ops)).
				Err(err).
				Msg("batch chunk failed, stopping")
			return committed, &WriteError{Committed: committed, FailedChunk: chunk, Err: err}
		}

		committed = end
		log.Debug().
			Int("chunk", chunk).
			Int("committed", committed).
			Int("total", len(ops)).
			Msg("batch chunk committed")
	}
	return committed, nil
}

// Resume skips the already committed prefix reported by a previous
// WriteError and commits the rest.
func (w *Writer) Resume(ctx context.Context, ops []docstore.WriteOp, committed int) (int, error) {
	if committed < 0 || committed > len(ops) {
		return 0, fmt.Errorf("Resume: committed %d out of range for %d ops", committed, len(ops))
	}
	n, err := w.Commit(ctx, ops[committed:])
	total := committed + n
	if err != nil {
		var werr *WriteError
		if errors.As(err, &werr) {
			// Re-anchor to the original op sequence: Commit saw only the
			// suffix, so both counters are relative to it.
			werr.Committed = total
			werr.FailedChunk += committed / w.chunkSize
		}
		return total, err
	}
	return total, nil
}
