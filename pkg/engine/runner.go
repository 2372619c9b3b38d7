package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/dukex/journey/pkg/graph"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/dukex/journey/pkg/removal"
	"github.com/dukex/journey/pkg/rules"
	"go.opentelemetry.io/otel/attribute"
)

// Reasons recorded on executions the engine ends itself.
const (
	ReasonConfiguration  = "configuration_error"
	ReasonLoopDetected   = "loop_detected"
	ReasonRouting        = "routing_error"
	ReasonPanic          = "panic"
	ReasonJourneyArchive = "journey_archived"
	ReasonContactClosed  = "journey_contact_inactive"
	ReasonCallTimeout    = "call_timeout"
)

// runState is everything one execution needs, loaded once.
type runState struct {
	journey  *models.Journey
	graph    *graph.Graph
	node     *models.JourneyNode
	jc       *models.JourneyContact
	contact  *models.Contact
	settings *models.TenantSettings

	// settleAs overrides the status finish derives from the outcome.
	settleAs models.ExecutionStatus
}

// RunExecution runs a PENDING execution by id. Executions in any other state are left alone.
func (e *Engine) RunExecution(ctx context.Context, executionID string) error {
	exec, err := e.store.Executions().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	return e.run(ctx, exec, 0)
}

func (e *Engine) run(ctx context.Context, exec *models.JourneyNodeExecution, depth int) (err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "journey.execution.run",
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.JourneyIDKey, exec.JourneyID),
		attribute.String(otelhelper.JourneyContactIDKey, exec.JourneyContactID),
		attribute.String(otelhelper.NodeIDKey, exec.NodeID),
		attribute.String(otelhelper.NodeTypeKey, string(exec.NodeType)),
	)
	defer span.End()

	var st *runState

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "execution panicked",
				"execution_id", exec.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			err = e.halt(ctx, st, exec, ReasonPanic, fmt.Errorf("panic: %v", r))
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	if exec.Status != models.ExecutionPending {
		return nil
	}

	st, done, err := e.prepare(ctx, exec)
	if err != nil || done {
		return err
	}

	now := e.now()

	since := now.Add(-e.options.LoopWindow)
	if st.jc.EnrolledAt.After(since) {
		since = st.jc.EnrolledAt
	}

	recent, err := e.store.Executions().ExecutedSince(ctx, exec.JourneyContactID, exec.NodeID, since)
	if err != nil {
		return fmt.Errorf("failed to check recent executions: %w", err)
	}

	// Executions of an earlier enrollment are history, not a loop.
	for _, r := range recent {
		if r.ID != exec.ID && r.Enrollment == exec.Enrollment {
			return e.halt(ctx, st, exec, ReasonLoopDetected, fmt.Errorf("node %s ran again within %s: %w", exec.NodeID, e.options.LoopWindow, ErrLoopDetected))
		}
	}

	decision, err := e.gate.Evaluate(ctx, rules.Input{
		Now:            now,
		ScheduledAt:    exec.ScheduledAt,
		NodeType:       st.node.Type,
		Settings:       st.settings,
		Journey:        st.journey,
		Contact:        st.contact,
		JourneyContact: st.jc,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate execution rules: %w", err)
	}

	if !decision.ShouldExecute {
		return e.applyDecision(ctx, st, exec, decision, depth)
	}

	exec.Status = models.ExecutionExecuting
	exec.ExecutedAt = &now
	exec.UpdatedAt = now

	claimed, err := e.store.Executions().Transition(ctx, exec, models.ExecutionPending)
	if err != nil {
		return fmt.Errorf("failed to claim execution %s: %w", exec.ID, err)
	}

	if !claimed {
		e.logger.DebugContext(ctx, "execution claimed elsewhere", "execution_id", exec.ID)

		return nil
	}

	result, err := e.executor.Execute(ctx, &protocol.ExecutionInput{
		Now:            now,
		Journey:        st.journey,
		Node:           st.node,
		JourneyContact: st.jc,
		Contact:        st.contact,
		Settings:       st.settings,
		Execution:      exec,
		Conversation:   newConversation(e.store, st.jc),
	})
	if err != nil {
		return e.halt(ctx, st, exec, ReasonConfiguration, err)
	}

	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, result.Outcome))

	if result.Suspend != nil {
		return e.suspend(ctx, exec, result)
	}

	return e.finish(ctx, st, exec, result.ExecutionResult(), removal.Context{Contact: st.contact}, depth)
}

// prepare loads what exec needs. done reports that exec was settled without running.
func (e *Engine) prepare(ctx context.Context, exec *models.JourneyNodeExecution) (*runState, bool, error) {
	st := &runState{}

	jc, err := e.store.JourneyContacts().GetByID(ctx, exec.JourneyContactID)
	if err != nil {
		if errors.Is(err, persistence.ErrJourneyContactNotFound) {
			return nil, true, e.skip(ctx, exec, ReasonContactClosed)
		}

		return nil, false, err
	}

	st.jc = jc

	if !jc.IsActive() {
		return st, true, e.skip(ctx, exec, ReasonContactClosed)
	}

	journey, err := e.store.Journeys().GetByID(ctx, exec.JourneyID)
	if err != nil {
		return nil, false, err
	}

	st.journey = journey

	switch journey.Status {
	case models.JourneyStatusActive:
	case models.JourneyStatusArchived:
		return st, true, e.skip(ctx, exec, ReasonJourneyArchive)
	default:
		return st, true, e.postpone(ctx, exec)
	}

	st.graph, err = e.loadGraph(ctx, journey.ID)
	if err != nil {
		return nil, false, err
	}

	node, ok := st.graph.Node(exec.NodeID)
	if !ok {
		return st, true, e.halt(ctx, st, exec, ReasonConfiguration, fmt.Errorf("node %s: %w", exec.NodeID, persistence.ErrNodeNotFound))
	}

	st.node = node

	st.contact, err = e.store.Contacts().GetByID(ctx, jc.TenantID, jc.ContactID)
	if err != nil {
		if errors.Is(err, persistence.ErrContactNotFound) {
			return st, true, e.halt(ctx, st, exec, ReasonConfiguration, err)
		}

		return nil, false, err
	}

	st.settings, err = e.settings(ctx, jc.TenantID)
	if err != nil {
		return nil, false, err
	}

	return st, false, nil
}

// postpone pushes exec back while its journey is paused.
func (e *Engine) postpone(ctx context.Context, exec *models.JourneyNodeExecution) error {
	now := e.now()

	exec.ScheduledAt = now.Add(e.options.PausedRecheck)
	exec.UpdatedAt = now

	_, err := e.store.Executions().Transition(ctx, exec, models.ExecutionPending)
	if err != nil {
		return fmt.Errorf("failed to defer execution %s: %w", exec.ID, err)
	}

	return nil
}

func (e *Engine) skip(ctx context.Context, exec *models.JourneyNodeExecution, reason string) error {
	now := e.now()

	exec.Status = models.ExecutionSkipped
	exec.Result = models.ExecutionResult{Outcome: models.OutcomeSkipped, Reason: reason}
	exec.CompletedAt = &now
	exec.UpdatedAt = now

	_, err := e.store.Executions().Transition(ctx, exec, models.ExecutionPending)
	if err != nil {
		return fmt.Errorf("failed to skip execution %s: %w", exec.ID, err)
	}

	e.logger.InfoContext(ctx, "execution skipped", "execution_id", exec.ID, "reason", reason)

	return nil
}

// applyDecision carries out a blocking rules decision.
func (e *Engine) applyDecision(ctx context.Context, st *runState, exec *models.JourneyNodeExecution, decision rules.Decision, depth int) error {
	e.logger.InfoContext(ctx, "execution blocked by rules",
		"execution_id", exec.ID,
		"action", decision.Action,
		"reason", decision.Reason,
	)

	switch decision.Action {
	case models.GateActionReschedule:
		if decision.NewScheduledTime == nil {
			return fmt.Errorf("reschedule decision for %s has no time", exec.ID)
		}

		e.queue.Enqueue(exec.ID, *decision.NewScheduledTime)

		return nil
	case models.GateActionPause:
		err := e.skip(ctx, exec, decision.Reason)
		if err != nil {
			return err
		}

		return e.pause(ctx, st.jc, decision.Reason)
	case models.GateActionDefaultEvent:
		target, ok := st.graph.Node(decision.TargetNodeID)
		if !ok {
			return e.halt(ctx, st, exec, ReasonRouting, &graph.RoutingError{NodeID: exec.NodeID, Target: decision.TargetNodeID, Err: graph.ErrDanglingEdge})
		}

		err := e.skip(ctx, exec, decision.Reason)
		if err != nil {
			return err
		}

		_, err = e.schedule(ctx, scheduleRequest{
			journey:  st.journey,
			jc:       st.jc,
			node:     target,
			contact:  st.contact,
			settings: st.settings,
			depth:    depth,
		})

		return err
	default:
		err := e.skip(ctx, exec, decision.Reason)
		if err != nil {
			return err
		}

		return e.advance(ctx, st, exec, models.ExecutionResult{Outcome: models.OutcomeSkipped, Reason: decision.Reason}, depth)
	}
}

// suspend parks an EXECUTING call until its completion arrives.
func (e *Engine) suspend(ctx context.Context, exec *models.JourneyNodeExecution, result protocol.Result) error {
	exec.AwaitingCallback = models.CallbackCallCompletion
	exec.CallCorrelationID = result.Suspend.CorrelationID
	exec.CallPhone = removal.NormalizePhone(result.Suspend.Phone)
	exec.Result = result.ExecutionResult()
	exec.UpdatedAt = e.now()

	err := e.store.Executions().Save(ctx, exec)
	if err != nil {
		return fmt.Errorf("failed to suspend execution %s: %w", exec.ID, err)
	}

	e.logger.InfoContext(ctx, "execution waiting for call completion",
		"execution_id", exec.ID,
		"correlation_id", exec.CallCorrelationID,
	)

	return nil
}

// finish settles an EXECUTING execution with result, applies removal
// criteria and moves the contact on.
func (e *Engine) finish(ctx context.Context, st *runState, exec *models.JourneyNodeExecution, result models.ExecutionResult, rc removal.Context, depth int) error {
	next, routeErr := st.graph.Next(st.node, result)
	if routeErr != nil {
		exec.Result = result

		return e.halt(ctx, st, exec, ReasonRouting, routeErr)
	}

	now := e.now()

	exec.Status = models.ExecutionCompleted
	if models.IsFailureOutcome(result.Outcome) {
		exec.Status = models.ExecutionFailed
	}

	if st.settleAs != "" {
		exec.Status = st.settleAs
	}

	exec.Result = result
	exec.AwaitingCallback = models.CallbackNone
	exec.CompletedAt = &now
	exec.UpdatedAt = now

	settled, err := e.store.Executions().Transition(ctx, exec, models.ExecutionExecuting)
	if err != nil {
		return fmt.Errorf("failed to settle execution %s: %w", exec.ID, err)
	}

	if !settled {
		e.logger.DebugContext(ctx, "execution settled elsewhere", "execution_id", exec.ID)

		return nil
	}

	e.logger.InfoContext(ctx, "execution finished",
		"execution_id", exec.ID,
		"node_id", exec.NodeID,
		"node_type", exec.NodeType,
		"outcome", result.Outcome,
		"reason", result.Reason,
	)

	e.publishExecution(ctx, exec)

	if !st.jc.IsActive() {
		return nil
	}

	if rc.Contact == nil {
		rc.Contact = st.contact
	}

	if match, ok := removal.Evaluate(st.journey.RemovalCriteria, rc); ok {
		return e.remove(ctx, st.jc, match.Reason)
	}

	return e.moveTo(ctx, st, next, result, depth)
}

// advance routes from exec's node without settling exec, for executions
// already ended by the caller.
func (e *Engine) advance(ctx context.Context, st *runState, exec *models.JourneyNodeExecution, result models.ExecutionResult, depth int) error {
	next, err := st.graph.Next(st.node, result)
	if err != nil {
		return e.pauseOnError(ctx, st, exec, ReasonRouting, err)
	}

	return e.moveTo(ctx, st, next, result, depth)
}

func (e *Engine) moveTo(ctx context.Context, st *runState, next *models.JourneyNode, result models.ExecutionResult, depth int) error {
	if next == nil {
		return e.complete(ctx, st.jc)
	}

	req := scheduleRequest{
		journey:  st.journey,
		jc:       st.jc,
		node:     next,
		contact:  st.contact,
		settings: st.settings,
		depth:    depth,
	}

	if result.DelayUntil != nil {
		req.base = *result.DelayUntil
	}

	_, err := e.schedule(ctx, req)

	return err
}

// halt fails exec and pauses the contact on its current node.
func (e *Engine) halt(ctx context.Context, st *runState, exec *models.JourneyNodeExecution, reason string, cause error) error {
	now := e.now()

	exec.Status = models.ExecutionFailed
	exec.AwaitingCallback = models.CallbackNone
	exec.Result.Error = cause.Error()
	exec.Result.Reason = reason
	exec.CompletedAt = &now
	exec.UpdatedAt = now

	err := e.store.Executions().Save(ctx, exec)
	if err != nil {
		return fmt.Errorf("failed to fail execution %s: %w", exec.ID, err)
	}

	e.publishExecution(ctx, exec)

	return e.pauseOnError(ctx, st, exec, reason, cause)
}

func (e *Engine) pauseOnError(ctx context.Context, st *runState, exec *models.JourneyNodeExecution, reason string, cause error) error {
	e.logger.ErrorContext(ctx, "execution halted",
		"execution_id", exec.ID,
		"journey_contact_id", exec.JourneyContactID,
		"node_id", exec.NodeID,
		"reason", reason,
		"error", cause,
	)

	jc := (*models.JourneyContact)(nil)
	if st != nil {
		jc = st.jc
	}

	if jc == nil {
		var err error

		jc, err = e.store.JourneyContacts().GetByID(ctx, exec.JourneyContactID)
		if err != nil {
			return fmt.Errorf("failed to load journey contact %s: %w", exec.JourneyContactID, err)
		}
	}

	if !jc.IsActive() {
		return nil
	}

	return e.pause(ctx, jc, reason)
}
