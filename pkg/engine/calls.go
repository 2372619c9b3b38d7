package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/removal"
	"go.opentelemetry.io/otel/attribute"
)

// CallCompletion is what the telephony provider reports when a call ends.
type CallCompletion struct {
	CorrelationID   string `json:"correlation_id"`
	Status          string `json:"status"`
	Disposition     string `json:"disposition,omitempty"`
	Phone           string `json:"phone,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Transferred     bool   `json:"transferred,omitempty"`
}

// MapCallStatus folds provider statuses into call outcomes.
func MapCallStatus(status, disposition string, transferred bool) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "busy":
		return models.OutcomeBusy
	case "no-answer", "no_answer", "noanswer":
		return models.OutcomeNoAnswer
	case "answered", "completed", "human":
		if transferred || strings.Contains(strings.ToLower(disposition), "transfer") {
			return models.OutcomeTransferred
		}

		return models.OutcomeAnswered
	default:
		return models.OutcomeFailed
	}
}

// HandleCallCompletion resumes the execution waiting on a finished call. A
// completion matching no waiting execution is logged and dropped.
func (e *Engine) HandleCallCompletion(ctx context.Context, c CallCompletion) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "journey.call.completion",
		attribute.String(otelhelper.CorrelationIDKey, c.CorrelationID),
	)
	defer span.End()

	exec, err := e.findAwaitingCall(ctx, c)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if exec == nil {
		e.logger.InfoContext(ctx, "no execution waiting for call",
			"correlation_id", c.CorrelationID,
			"phone", c.Phone,
			"status", c.Status,
		)

		return nil
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, exec.ID))

	outcome := MapCallStatus(c.Status, c.Disposition, c.Transferred)
	transferred := outcome == models.OutcomeTransferred

	e.closeCallLog(ctx, exec, outcome, transferred, c.DurationSeconds)

	result := exec.Result
	result.Outcome = outcome
	result.Data = maps.Clone(result.Data)

	if result.Data == nil {
		result.Data = make(map[string]any)
	}

	result.Data["call_status"] = c.Status
	result.Data["duration_seconds"] = c.DurationSeconds
	result.Data["transferred"] = transferred
	delete(result.Data, "waiting_for_call_completion")

	if c.Disposition != "" {
		result.Data["disposition"] = c.Disposition
	}

	if outcome == models.OutcomeFailed {
		result.Reason = "call_failed"
		result.Error = fmt.Sprintf("call ended with status %q", c.Status)
	}

	// A reported call is settled COMPLETED whatever its outcome; the outcome routes it.
	err = e.resume(ctx, exec, result, models.ExecutionCompleted, removal.Context{
		CallStatus:      outcome,
		Transferred:     transferred,
		DurationSeconds: c.DurationSeconds,
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// HandleCallStatusEvent adapts call.status bus events to HandleCallCompletion.
func (e *Engine) HandleCallStatusEvent(ctx context.Context, event any) error {
	status, ok := event.(*events.CallStatus)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return e.HandleCallCompletion(ctx, CallCompletion{
		CorrelationID:   status.CorrelationID,
		Status:          status.Status,
		Disposition:     status.Disposition,
		Phone:           status.Phone,
		DurationSeconds: status.DurationSeconds,
		Transferred:     status.Transferred,
	})
}

func (e *Engine) findAwaitingCall(ctx context.Context, c CallCompletion) (*models.JourneyNodeExecution, error) {
	if c.CorrelationID != "" {
		exec, err := e.store.Executions().FindAwaitingCall(ctx, c.CorrelationID)
		if err == nil {
			return exec, nil
		}

		if !errors.Is(err, persistence.ErrExecutionNotFound) {
			return nil, err
		}
	}

	phone := removal.NormalizePhone(c.Phone)
	if phone == "" {
		return nil, nil
	}

	exec, err := e.store.Executions().FindAwaitingCallByPhone(ctx, phone, e.now().Add(-e.options.CallFallbackWindow))
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return exec, nil
}

// SweepStaleCalls fails calls that never reported completion and routes them
// through the failure edge.
func (e *Engine) SweepStaleCalls(ctx context.Context) (int, error) {
	stale, err := e.store.Executions().ListStaleAwaitingCall(ctx, e.now().Add(-e.options.CallCompletionTimeout), e.options.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale calls: %w", err)
	}

	swept := 0

	for _, exec := range stale {
		e.closeCallLog(ctx, exec, "timeout", false, 0)

		result := exec.Result
		result.Outcome = models.OutcomeFailed
		result.Reason = ReasonCallTimeout
		result.Error = fmt.Sprintf("no call completion within %s", e.options.CallCompletionTimeout)

		err := e.resume(ctx, exec, result, models.ExecutionFailed, removal.Context{})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to time out call", "execution_id", exec.ID, "error", err)

			continue
		}

		swept++
	}

	if swept > 0 {
		e.logger.InfoContext(ctx, "stale calls timed out", "count", swept)
	}

	return swept, nil
}

// resume settles a suspended execution as status and moves its contact on.
func (e *Engine) resume(ctx context.Context, exec *models.JourneyNodeExecution, result models.ExecutionResult, status models.ExecutionStatus, rc removal.Context) error {
	st, err := e.resumeState(ctx, exec)
	if err != nil {
		return err
	}

	st.settleAs = status

	if st.node == nil {
		exec.Result = result

		return e.halt(ctx, st, exec, ReasonConfiguration, fmt.Errorf("node %s: %w", exec.NodeID, persistence.ErrNodeNotFound))
	}

	return e.finish(ctx, st, exec, result, rc, 0)
}

// resumeState loads state for a suspended execution. Unlike prepare it does
// not bail out on inactive contacts: the call happened and must be recorded.
func (e *Engine) resumeState(ctx context.Context, exec *models.JourneyNodeExecution) (*runState, error) {
	st := &runState{}

	var err error

	st.jc, err = e.store.JourneyContacts().GetByID(ctx, exec.JourneyContactID)
	if err != nil {
		return nil, err
	}

	st.journey, err = e.store.Journeys().GetByID(ctx, exec.JourneyID)
	if err != nil {
		return nil, err
	}

	st.graph, err = e.loadGraph(ctx, exec.JourneyID)
	if err != nil {
		return nil, err
	}

	st.node, _ = st.graph.Node(exec.NodeID)

	st.contact, err = e.store.Contacts().GetByID(ctx, st.jc.TenantID, st.jc.ContactID)
	if err != nil {
		return nil, err
	}

	st.settings, err = e.settings(ctx, st.jc.TenantID)
	if err != nil {
		return nil, err
	}

	return st, nil
}

func (e *Engine) closeCallLog(ctx context.Context, exec *models.JourneyNodeExecution, status string, transferred bool, duration int) {
	if exec.CallCorrelationID == "" {
		return
	}

	log, err := e.store.CallLogs().GetByCorrelationID(ctx, exec.CallCorrelationID)
	if err != nil {
		if !errors.Is(err, persistence.ErrCallLogNotFound) {
			e.logger.ErrorContext(ctx, "failed to load call log", "correlation_id", exec.CallCorrelationID, "error", err)
		}

		return
	}

	now := e.now()

	log.Status = status
	log.InFlight = false
	log.Transferred = transferred
	log.DurationSeconds = duration
	log.EndedAt = &now

	err = e.store.CallLogs().Save(ctx, log)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to update call log", "correlation_id", exec.CallCorrelationID, "error", err)
	}
}
