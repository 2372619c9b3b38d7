package file

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type executionRepository struct {
	p *Persistence
}

func byScheduledAt(a, b *models.JourneyNodeExecution) int {
	if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

func executedAt(e *models.JourneyNodeExecution) time.Time {
	if e.ExecutedAt == nil {
		return time.Time{}
	}

	return *e.ExecutedAt
}

func (r *executionRepository) CreatePending(_ context.Context, exec *models.JourneyNodeExecution) (*models.JourneyNodeExecution, bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	open, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.JourneyContactID == exec.JourneyContactID && e.NodeID == exec.NodeID && e.Status.IsOpen()
	})
	if err != nil {
		return nil, false, err
	}

	if len(open) > 0 {
		return open[0], false, nil
	}

	exec.Status = models.ExecutionPending

	if err := r.p.executions.put(exec.ID, exec); err != nil {
		return nil, false, err
	}

	return exec, true, nil
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	e, err := r.p.executions.get(id)
	if err != nil {
		return nil, err
	}

	if e == nil {
		return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrExecutionNotFound)
	}

	return e, nil
}

func (r *executionRepository) Save(_ context.Context, exec *models.JourneyNodeExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.executions.put(exec.ID, exec)
}

func (r *executionRepository) Transition(_ context.Context, exec *models.JourneyNodeExecution, from models.ExecutionStatus) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	current, err := r.p.executions.get(exec.ID)
	if err != nil {
		return false, err
	}

	if current == nil {
		return false, fmt.Errorf("execution %s: %w", exec.ID, persistence.ErrExecutionNotFound)
	}

	if current.Status != from {
		return false, nil
	}

	return true, r.p.executions.put(exec.ID, exec)
}

func (r *executionRepository) Due(_ context.Context, q persistence.DueQuery) ([]*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	due, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		if e.Status != models.ExecutionPending || e.ScheduledAt.After(q.Now) {
			return false
		}

		if !q.After.Past(e.ScheduledAt, e.ID) {
			return false
		}

		if len(q.Types) > 0 && !slices.Contains(q.Types, e.NodeType) {
			return false
		}

		return !slices.Contains(q.ExcludeTypes, e.NodeType)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(due, byScheduledAt)

	if q.Limit > 0 && len(due) > q.Limit {
		due = due[:q.Limit]
	}

	return due, nil
}

func (r *executionRepository) ListByJourneyContact(_ context.Context, journeyContactID string) ([]*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.JourneyContactID == journeyContactID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(found, func(a, b *models.JourneyNodeExecution) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return found, nil
}

func (r *executionRepository) ExecutedSince(_ context.Context, journeyContactID, nodeID string, since time.Time) ([]*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.JourneyContactID == journeyContactID &&
			e.NodeID == nodeID &&
			e.ExecutedAt != nil &&
			!e.ExecutedAt.Before(since)
	})
}

func (r *executionRepository) LatestCompletedByType(_ context.Context, journeyContactID string, nodeType models.NodeType) (*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.JourneyContactID == journeyContactID && e.NodeType == nodeType && e.CompletedAt != nil
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}

	return slices.MaxFunc(found, func(a, b *models.JourneyNodeExecution) int {
		return a.CompletedAt.Compare(*b.CompletedAt)
	}), nil
}

func (r *executionRepository) FindAwaitingCall(_ context.Context, correlationID string) (*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.IsAwaitingCall() && e.CallCorrelationID == correlationID
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("call %s: %w", correlationID, persistence.ErrExecutionNotFound)
	}

	return found[0], nil
}

func (r *executionRepository) FindAwaitingCallByPhone(_ context.Context, phone string, since time.Time) (*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.IsAwaitingCall() && e.CallPhone == phone && !executedAt(e).Before(since)
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("call to %s: %w", phone, persistence.ErrExecutionNotFound)
	}

	return slices.MaxFunc(found, func(a, b *models.JourneyNodeExecution) int {
		return executedAt(a).Compare(executedAt(b))
	}), nil
}

func (r *executionRepository) ListStaleAwaitingCall(_ context.Context, executedBefore time.Time, limit int) ([]*models.JourneyNodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.IsAwaitingCall() && executedAt(e).Before(executedBefore)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(found, func(a, b *models.JourneyNodeExecution) int {
		return executedAt(a).Compare(executedAt(b))
	})

	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	return found, nil
}

func (r *executionRepository) BulkReschedule(_ context.Context, times map[string]time.Time) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	moved := 0

	for id, at := range times {
		e, err := r.p.executions.get(id)
		if err != nil {
			return moved, err
		}

		if e == nil || e.Status != models.ExecutionPending {
			continue
		}

		e.ScheduledAt = at
		e.UpdatedAt = time.Now().UTC()

		if err := r.p.executions.put(id, e); err != nil {
			return moved, err
		}

		moved++
	}

	return moved, nil
}

func (r *executionRepository) CancelPending(_ context.Context, journeyContactID, reason string, at time.Time) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	pending, err := r.p.executions.matching(func(e *models.JourneyNodeExecution) bool {
		return e.JourneyContactID == journeyContactID && e.Status == models.ExecutionPending
	})
	if err != nil {
		return 0, err
	}

	for _, e := range pending {
		e.Status = models.ExecutionSkipped
		e.Result.Outcome = models.OutcomeSkipped
		e.Result.Reason = reason
		e.CompletedAt = &at
		e.UpdatedAt = at

		if err := r.p.executions.put(e.ID, e); err != nil {
			return 0, err
		}
	}

	return len(pending), nil
}
