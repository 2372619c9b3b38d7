package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles journey_node_executions rows.
type ExecutionRepository struct {
	repository
}

const executionColumns = `
			id
		  , tenant_id
		  , journey_id
		  , journey_contact_id
		  , node_id
		  , node_type
		  , status
		  , awaiting_callback
		  , call_correlation_id
		  , call_phone
		  , scheduled_at
		  , executed_at
		  , completed_at
		  , result
		  , created_at
		  , updated_at
		  , enrollment`

// createAttempts bounds how often CreatePending retries when the open row it
// conflicted with closes before it can be read.
const createAttempts = 3

// CreatePending relies on the uq_executions_open partial index to keep at
// most one open execution per node and journey contact.
func (r *ExecutionRepository) CreatePending(ctx context.Context, exec *models.JourneyNodeExecution) (*models.JourneyNodeExecution, bool, error) {
	exec.Status = models.ExecutionPending

	result, err := objectJSON(exec.Result)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal execution result: %w", err)
	}

	insert := `
		INSERT INTO journey_node_executions (id, tenant_id, journey_id, journey_contact_id, node_id, node_type,
			status, awaiting_callback, call_correlation_id, call_phone, scheduled_at, executed_at, completed_at,
			result, created_at, updated_at, enrollment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (journey_contact_id, node_id) WHERE status IN ('PENDING', 'EXECUTING') DO NOTHING
	`

	existing := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE journey_contact_id = $1 AND node_id = $2 AND status IN ('PENDING', 'EXECUTING')
	`

	for range createAttempts {
		res, err := r.db.ExecContext(ctx, insert,
			exec.ID,
			exec.TenantID,
			exec.JourneyID,
			exec.JourneyContactID,
			exec.NodeID,
			exec.NodeType,
			exec.Status,
			exec.AwaitingCallback,
			exec.CallCorrelationID,
			exec.CallPhone,
			exec.ScheduledAt,
			exec.ExecutedAt,
			exec.CompletedAt,
			result,
			exec.CreatedAt,
			exec.UpdatedAt,
			exec.Enrollment,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert execution: %w", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
		}

		if inserted == 1 {
			return exec, true, nil
		}

		open, err := scanExecution(r.db.QueryRowContext(ctx, existing, exec.JourneyContactID, exec.NodeID))
		if err == nil {
			return open, false, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to load open execution: %w", err)
		}
	}

	return nil, false, fmt.Errorf("failed to create execution for node %s: open execution kept changing", exec.NodeID)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM journey_node_executions WHERE id = $1`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, exec *models.JourneyNodeExecution) error {
	result, err := objectJSON(exec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}

	query := `
		INSERT INTO journey_node_executions (id, tenant_id, journey_id, journey_contact_id, node_id, node_type,
			status, awaiting_callback, call_correlation_id, call_phone, scheduled_at, executed_at, completed_at,
			result, created_at, updated_at, enrollment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			awaiting_callback = EXCLUDED.awaiting_callback,
			call_correlation_id = EXCLUDED.call_correlation_id,
			call_phone = EXCLUDED.call_phone,
			scheduled_at = EXCLUDED.scheduled_at,
			executed_at = EXCLUDED.executed_at,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		exec.ID,
		exec.TenantID,
		exec.JourneyID,
		exec.JourneyContactID,
		exec.NodeID,
		exec.NodeType,
		exec.Status,
		exec.AwaitingCallback,
		exec.CallCorrelationID,
		exec.CallPhone,
		exec.ScheduledAt,
		exec.ExecutedAt,
		exec.CompletedAt,
		result,
		exec.CreatedAt,
		exec.UpdatedAt,
		exec.Enrollment,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", exec.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Transition(ctx context.Context, exec *models.JourneyNodeExecution, from models.ExecutionStatus) (bool, error) {
	result, err := objectJSON(exec.Result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal execution result: %w", err)
	}

	query := `
		UPDATE journey_node_executions SET
			status = $3,
			awaiting_callback = $4,
			call_correlation_id = $5,
			call_phone = $6,
			scheduled_at = $7,
			executed_at = $8,
			completed_at = $9,
			result = $10,
			updated_at = $11
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query,
		exec.ID,
		from,
		exec.Status,
		exec.AwaitingCallback,
		exec.CallCorrelationID,
		exec.CallPhone,
		exec.ScheduledAt,
		exec.ExecutedAt,
		exec.CompletedAt,
		result,
		exec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition execution %s: %w", exec.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 1 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM journey_node_executions WHERE id = $1)`, exec.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check execution %s: %w", exec.ID, err)
	}

	if !exists {
		return false, fmt.Errorf("execution %s: %w", exec.ID, persistence.ErrExecutionNotFound)
	}

	return false, nil
}

func (r *ExecutionRepository) Due(ctx context.Context, q persistence.DueQuery) ([]*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE status = 'PENDING'
		  AND scheduled_at <= $1
		  AND (cardinality($2::text[]) = 0 OR node_type = ANY($2))
		  AND NOT (node_type = ANY($3::text[]))
		  AND ($5::timestamptz IS NULL OR (scheduled_at, id) > ($5::timestamptz, $6::text))
		ORDER BY scheduled_at, id
		LIMIT NULLIF($4, 0)
	`

	var (
		afterAt sql.NullTime
		afterID string
	)

	if q.After != nil {
		afterAt = sql.NullTime{Time: q.After.ScheduledAt, Valid: true}
		afterID = q.After.ID
	}

	return r.list(ctx, query, q.Now, pq.Array(nodeTypes(q.Types)), pq.Array(nodeTypes(q.ExcludeTypes)), q.Limit, afterAt, afterID)
}

func (r *ExecutionRepository) ListByJourneyContact(ctx context.Context, journeyContactID string) ([]*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE journey_contact_id = $1
		ORDER BY created_at
	`

	return r.list(ctx, query, journeyContactID)
}

func (r *ExecutionRepository) ExecutedSince(ctx context.Context, journeyContactID, nodeID string, since time.Time) ([]*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE journey_contact_id = $1 AND node_id = $2 AND executed_at >= $3
	`

	return r.list(ctx, query, journeyContactID, nodeID, since)
}

func (r *ExecutionRepository) LatestCompletedByType(ctx context.Context, journeyContactID string, nodeType models.NodeType) (*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE journey_contact_id = $1 AND node_type = $2 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, journeyContactID, nodeType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

func (r *ExecutionRepository) FindAwaitingCall(ctx context.Context, correlationID string) (*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE status = 'EXECUTING' AND awaiting_callback = $1 AND call_correlation_id = $2
		LIMIT 1
	`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, models.CallbackCallCompletion, correlationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", correlationID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

func (r *ExecutionRepository) FindAwaitingCallByPhone(ctx context.Context, phone string, since time.Time) (*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE status = 'EXECUTING' AND awaiting_callback = $1 AND call_phone = $2 AND executed_at >= $3
		ORDER BY executed_at DESC
		LIMIT 1
	`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, models.CallbackCallCompletion, phone, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call to %s: %w", phone, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

func (r *ExecutionRepository) ListStaleAwaitingCall(ctx context.Context, executedBefore time.Time, limit int) ([]*models.JourneyNodeExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM journey_node_executions
		WHERE status = 'EXECUTING' AND awaiting_callback = $1 AND COALESCE(executed_at, 'epoch') < $2
		ORDER BY executed_at
		LIMIT NULLIF($3, 0)
	`

	return r.list(ctx, query, models.CallbackCallCompletion, executedBefore, limit)
}

func (r *ExecutionRepository) BulkReschedule(ctx context.Context, times map[string]time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE journey_node_executions
		SET scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	moved := 0

	for id, at := range times {
		res, err := tx.ExecContext(ctx, query, id, at)
		if err != nil {
			return 0, fmt.Errorf("failed to reschedule execution %s: %w", id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}

		moved += int(n)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return moved, nil
}

func (r *ExecutionRepository) CancelPending(ctx context.Context, journeyContactID, reason string, at time.Time) (int, error) {
	query := `
		UPDATE journey_node_executions
		SET status = 'SKIPPED',
			result = result || jsonb_build_object('outcome', $2::text, 'reason', $3::text),
			completed_at = $4,
			updated_at = $4
		WHERE journey_contact_id = $1 AND status = 'PENDING'
	`

	res, err := r.db.ExecContext(ctx, query, journeyContactID, models.OutcomeSkipped, reason, at)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending executions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(n), nil
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...any) ([]*models.JourneyNodeExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	found := make([]*models.JourneyNodeExecution, 0)

	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		found = append(found, exec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return found, nil
}

func nodeTypes(types []models.NodeType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}

	return out
}

func scanExecution(row scanner) (*models.JourneyNodeExecution, error) {
	var (
		exec   models.JourneyNodeExecution
		result []byte
	)

	err := row.Scan(
		&exec.ID,
		&exec.TenantID,
		&exec.JourneyID,
		&exec.JourneyContactID,
		&exec.NodeID,
		&exec.NodeType,
		&exec.Status,
		&exec.AwaitingCallback,
		&exec.CallCorrelationID,
		&exec.CallPhone,
		&exec.ScheduledAt,
		&exec.ExecutedAt,
		&exec.CompletedAt,
		&result,
		&exec.CreatedAt,
		&exec.UpdatedAt,
		&exec.Enrollment,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(result, &exec.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
	}

	return &exec, nil
}
