package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Rescheduler moves PENDING executions in bulk.
type Rescheduler interface {
	BulkReschedule(ctx context.Context, times map[string]time.Time) (int, error)
}

// RescheduleQueue collects gate reschedules so they are written in one batch
// per flush instead of one update per blocked execution.
type RescheduleQueue struct {
	mu      sync.Mutex
	max     int
	pending map[string]time.Time
	logger  *slog.Logger
}

func NewRescheduleQueue(logger *slog.Logger, max int) *RescheduleQueue {
	return &RescheduleQueue{
		max:     max,
		pending: make(map[string]time.Time),
		logger:  logger,
	}
}

// Enqueue records a new time for an execution. It returns false when the
// queue is full; the execution then stays due and is reconsidered next cycle.
func (q *RescheduleQueue) Enqueue(executionID string, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[executionID]; !ok && q.max > 0 && len(q.pending) >= q.max {
		q.logger.Warn("reschedule queue full, dropping", "execution_id", executionID, "size", len(q.pending))

		return false
	}

	q.pending[executionID] = at

	return true
}

func (q *RescheduleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Pending reports whether an execution is waiting to be moved.
func (q *RescheduleQueue) Pending(executionID string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	at, ok := q.pending[executionID]

	return at, ok
}

// Flush writes every queued time. On failure the batch is put back, unless
// newer times were queued for the same executions meanwhile.
func (q *RescheduleQueue) Flush(ctx context.Context, store Rescheduler) (int, error) {
	q.mu.Lock()
	batch := q.pending
	q.pending = make(map[string]time.Time, len(batch))
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	moved, err := store.BulkReschedule(ctx, batch)
	if err != nil {
		q.mu.Lock()
		for id, at := range batch {
			if _, ok := q.pending[id]; !ok {
				q.pending[id] = at
			}
		}
		q.mu.Unlock()

		return moved, err
	}

	q.logger.DebugContext(ctx, "reschedule queue flushed", "queued", len(batch), "moved", moved)

	return moved, nil
}
