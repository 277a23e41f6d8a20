package transcript

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jqb69/darkseek/pkg/logging"
)

// Writer persists transcripts in the background, detached from the
// request context so a client disconnect never loses a write. A
// weighted semaphore bounds the number of in-flight inserts.
type Writer struct {
	store   *Store
	sem     *semaphore.Weighted
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewWriter creates a background writer allowing at most maxInFlight
// concurrent inserts.
func NewWriter(store *Store, maxInFlight int64, logger logging.Logger) *Writer {
	return &Writer{
		store:   store,
		sem:     semaphore.NewWeighted(maxInFlight),
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Enqueue schedules the record for persistence and returns immediately.
// Failures are logged, never surfaced to the request path.
func (w *Writer) Enqueue(rec Record) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.logger.WithError(err).WithField("query", rec.QueryText).Error("Transcript write slot unavailable, dropping record")
			return
		}
		defer w.sem.Release(1)

		if err := w.store.Append(ctx, rec); err != nil {
			w.logger.WithError(err).WithField("query", rec.QueryText).Error("Failed to persist transcript")
		}
	}()
}

// Wait blocks until all scheduled writes have finished. Used during
// shutdown and in tests.
func (w *Writer) Wait() {
	w.wg.Wait()
}
