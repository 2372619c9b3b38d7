// Package engine moves contacts through journeys: it enrolls them, schedules
// node executions, runs due executions and routes call completions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/cache"
	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/graph"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/dukex/journey/pkg/removal"
	"github.com/dukex/journey/pkg/rules"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrDuplicateEnrollment = errors.New("contact is already active in this journey")
	ErrJourneyNotActive    = errors.New("journey is not active")
	ErrNotEnrolled         = errors.New("contact is not enrolled in this journey")
	ErrNotPaused           = errors.New("journey contact is not paused")
	ErrLoopDetected        = errors.New("loop detected")
)

// Executor runs one node. Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error)
}

// Gate decides whether an execution may run now.
type Gate interface {
	Evaluate(ctx context.Context, in rules.Input) (rules.Decision, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Options tunes scheduling and polling.
type Options struct {
	LoopWindow            time.Duration
	CallCooldown          time.Duration
	CallCompletionTimeout time.Duration
	CallFallbackWindow    time.Duration
	SpreadWindow          time.Duration
	PausedRecheck         time.Duration
	MaxInlineDepth        int

	PollInterval       time.Duration
	BatchSize          int
	CycleBudget        time.Duration
	StaleSweepInterval time.Duration
	FlushInterval      time.Duration
	RescheduleQueueMax int

	CacheTTL  time.Duration
	CacheSize int
}

func DefaultOptions() Options {
	return Options{
		LoopWindow:            5 * time.Second,
		CallCooldown:          5 * time.Minute,
		CallCompletionTimeout: 5 * time.Minute,
		CallFallbackWindow:    30 * time.Minute,
		SpreadWindow:          120 * time.Minute,
		PausedRecheck:         15 * time.Minute,
		MaxInlineDepth:        25,
		PollInterval:          time.Minute,
		BatchSize:             50,
		CycleBudget:           45 * time.Second,
		StaleSweepInterval:    time.Minute,
		FlushInterval:         15 * time.Second,
		RescheduleQueueMax:    10000,
		CacheTTL:              5 * time.Minute,
		CacheSize:             10000,
	}
}

// Config holds the engine's collaborators. Publisher, Tracer and Clock are optional.
type Config struct {
	Persistence persistence.Persistence
	Executor    Executor
	Gate        Gate
	Publisher   eventbus.EventPublisher
	Tracer      trace.Tracer
	Clock       Clock
	Options     Options
}

type Engine struct {
	store     persistence.Persistence
	executor  Executor
	gate      Gate
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	clock     Clock
	options   Options
	logger    *slog.Logger
	nodes     *cache.Cache[[]*models.JourneyNode]
	queue     *RescheduleQueue
}

func New(logger *slog.Logger, cfg Config) *Engine {
	opts := cfg.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("journey")
	}

	if cfg.Gate == nil {
		cfg.Gate = rules.NewGate(logger, cfg.Persistence.JourneyContacts())
	}

	logger = logger.With("module", "engine")

	return &Engine{
		store:     cfg.Persistence,
		executor:  cfg.Executor,
		gate:      cfg.Gate,
		publisher: cfg.Publisher,
		tracer:    cfg.Tracer,
		clock:     cfg.Clock,
		options:   opts,
		logger:    logger,
		nodes:     cache.New[[]*models.JourneyNode](opts.CacheTTL, opts.CacheSize),
		queue:     NewRescheduleQueue(logger, opts.RescheduleQueueMax),
	}
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// Options returns the tuning the engine runs with.
func (e *Engine) Options() Options {
	return e.options
}

// InvalidateJourney drops cached nodes after an authoring change.
func (e *Engine) InvalidateJourney(journeyID string) {
	e.nodes.Delete(journeyID)
}

func (e *Engine) loadGraph(ctx context.Context, journeyID string) (*graph.Graph, error) {
	nodes, err := e.nodes.GetOrLoad(ctx, journeyID, func(ctx context.Context) ([]*models.JourneyNode, error) {
		return e.store.Nodes().ListByJourney(ctx, journeyID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes of journey %s: %w", journeyID, err)
	}

	return graph.New(nodes), nil
}

func (e *Engine) journeyFor(ctx context.Context, tenantID, journeyID string) (*models.Journey, error) {
	journey, err := e.store.Journeys().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if tenantID != "" && journey.TenantID != tenantID {
		return nil, fmt.Errorf("journey %s: %w", journeyID, persistence.ErrJourneyNotFound)
	}

	return journey, nil
}

func (e *Engine) settings(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	settings, err := e.store.Tenants().Settings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, persistence.ErrTenantNotFound) {
			return &models.TenantSettings{TenantID: tenantID}, nil
		}

		return nil, err
	}

	return settings, nil
}

// EnrollContact adds a contact to an active journey and schedules its entry node.
// A contact already ACTIVE in the journey is rejected with ErrDuplicateEnrollment.
// Paused, completed or removed memberships are reactivated from the entry node.
func (e *Engine) EnrollContact(ctx context.Context, tenantID, journeyID, contactID, source string, data map[string]any) (*models.JourneyContact, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "journey.enroll",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.JourneyIDKey, journeyID),
		attribute.String(otelhelper.ContactIDKey, contactID),
	)
	defer span.End()

	jc, err := e.enroll(ctx, tenantID, journeyID, contactID, source, data)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.JourneyContactIDKey, jc.ID))

	return jc, nil
}

func (e *Engine) enroll(ctx context.Context, tenantID, journeyID, contactID, source string, data map[string]any) (*models.JourneyContact, error) {
	journey, err := e.journeyFor(ctx, tenantID, journeyID)
	if err != nil {
		return nil, err
	}

	if !journey.AcceptsEnrollment() {
		return nil, fmt.Errorf("journey %s is %s: %w", journeyID, journey.Status, ErrJourneyNotActive)
	}

	contact, err := e.store.Contacts().GetByID(ctx, journey.TenantID, contactID)
	if err != nil {
		return nil, err
	}

	g, err := e.loadGraph(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	entry, err := g.Entry()
	if err != nil {
		return nil, fmt.Errorf("journey %s: %w", journeyID, err)
	}

	now := e.now()

	jc, err := e.store.JourneyContacts().GetByJourneyAndContact(ctx, journeyID, contactID)

	switch {
	case err == nil && jc.IsActive():
		return nil, fmt.Errorf("contact %s in journey %s: %w", contactID, journeyID, ErrDuplicateEnrollment)
	case err == nil:
		_, err = e.store.Executions().CancelPending(ctx, jc.ID, "re_enrolled", now)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel pending executions: %w", err)
		}

		jc.PausedAt = nil
		jc.CompletedAt = nil
		jc.RemovedAt = nil
		jc.StatusReason = ""
		jc.Enrollment++
	case errors.Is(err, persistence.ErrJourneyContactNotFound):
		jc = &models.JourneyContact{
			ID:        uuid.NewString(),
			JourneyID: journeyID,
			TenantID:  journey.TenantID,
			ContactID:  contactID,
			Enrollment: 1,
			CreatedAt:  now,
		}
	default:
		return nil, err
	}

	jc.Status = models.JourneyContactActive
	jc.CurrentNodeID = entry.ID
	jc.Source = source
	jc.EnrollmentData = data
	jc.EnrolledAt = now
	jc.UpdatedAt = now

	err = e.store.JourneyContacts().Save(ctx, jc)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey contact: %w", err)
	}

	e.logger.InfoContext(ctx, "contact enrolled",
		"journey_id", journeyID,
		"contact_id", contactID,
		"journey_contact_id", jc.ID,
		"source", source,
	)

	e.publishContact(ctx, events.ContactEnrolledEvent, jc, source)

	settings, err := e.settings(ctx, journey.TenantID)
	if err != nil {
		return nil, err
	}

	_, err = e.schedule(ctx, scheduleRequest{
		journey:    journey,
		jc:         jc,
		node:       entry,
		contact:    contact,
		settings:   settings,
		enrollment: true,
	})
	if err != nil {
		return nil, err
	}

	return jc, nil
}

// RemoveContact ends or pauses a contact's membership and cancels its pending executions.
func (e *Engine) RemoveContact(ctx context.Context, tenantID, journeyID, contactID string, pauseOnly bool) error {
	journey, err := e.journeyFor(ctx, tenantID, journeyID)
	if err != nil {
		return err
	}

	jc, err := e.membership(ctx, journey.ID, contactID)
	if err != nil {
		return err
	}

	if pauseOnly {
		return e.pause(ctx, jc, "manual")
	}

	return e.remove(ctx, jc, "manual")
}

// ResumeContact reactivates a paused membership and reschedules its current node.
func (e *Engine) ResumeContact(ctx context.Context, tenantID, journeyID, contactID string) error {
	journey, err := e.journeyFor(ctx, tenantID, journeyID)
	if err != nil {
		return err
	}

	jc, err := e.membership(ctx, journey.ID, contactID)
	if err != nil {
		return err
	}

	if jc.Status != models.JourneyContactPaused {
		return fmt.Errorf("journey contact %s is %s: %w", jc.ID, jc.Status, ErrNotPaused)
	}

	g, err := e.loadGraph(ctx, journey.ID)
	if err != nil {
		return err
	}

	node, ok := g.Node(jc.CurrentNodeID)
	if !ok {
		node, err = g.Entry()
		if err != nil {
			return fmt.Errorf("journey %s: %w", journey.ID, err)
		}
	}

	contact, err := e.store.Contacts().GetByID(ctx, journey.TenantID, contactID)
	if err != nil {
		return err
	}

	settings, err := e.settings(ctx, journey.TenantID)
	if err != nil {
		return err
	}

	now := e.now()
	jc.Status = models.JourneyContactActive
	jc.PausedAt = nil
	jc.StatusReason = ""
	jc.UpdatedAt = now

	err = e.store.JourneyContacts().Save(ctx, jc)
	if err != nil {
		return fmt.Errorf("failed to save journey contact: %w", err)
	}

	e.publishContact(ctx, events.ContactResumedEvent, jc, "")

	_, err = e.schedule(ctx, scheduleRequest{
		journey:  journey,
		jc:       jc,
		node:     node,
		contact:  contact,
		settings: settings,
	})

	return err
}

// CheckRemovalCriteriaForWebhook evaluates the journey's removal criteria
// against an inbound webhook payload and removes the contact on a match.
func (e *Engine) CheckRemovalCriteriaForWebhook(ctx context.Context, tenantID, journeyID, contactID string, payload map[string]any) (bool, error) {
	journey, err := e.journeyFor(ctx, tenantID, journeyID)
	if err != nil {
		return false, err
	}

	jc, err := e.membership(ctx, journey.ID, contactID)
	if err != nil {
		return false, err
	}

	if !jc.IsActive() {
		return false, nil
	}

	contact, err := e.store.Contacts().GetByID(ctx, journey.TenantID, contactID)
	if err != nil {
		return false, err
	}

	match, ok := removal.Evaluate(journey.RemovalCriteria, removal.Context{Contact: contact, Payload: payload})
	if !ok {
		return false, nil
	}

	err = e.remove(ctx, jc, match.Reason)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (e *Engine) membership(ctx context.Context, journeyID, contactID string) (*models.JourneyContact, error) {
	jc, err := e.store.JourneyContacts().GetByJourneyAndContact(ctx, journeyID, contactID)
	if err != nil {
		if errors.Is(err, persistence.ErrJourneyContactNotFound) {
			return nil, fmt.Errorf("contact %s in journey %s: %w", contactID, journeyID, ErrNotEnrolled)
		}

		return nil, err
	}

	return jc, nil
}

func (e *Engine) pause(ctx context.Context, jc *models.JourneyContact, reason string) error {
	now := e.now()

	jc.Status = models.JourneyContactPaused
	jc.PausedAt = &now
	jc.StatusReason = reason
	jc.UpdatedAt = now

	return e.closeMembership(ctx, jc, events.ContactPausedEvent, reason)
}

func (e *Engine) remove(ctx context.Context, jc *models.JourneyContact, reason string) error {
	now := e.now()

	jc.Status = models.JourneyContactRemoved
	jc.RemovedAt = &now
	jc.StatusReason = reason
	jc.UpdatedAt = now

	return e.closeMembership(ctx, jc, events.ContactRemovedEvent, reason)
}

func (e *Engine) complete(ctx context.Context, jc *models.JourneyContact) error {
	now := e.now()

	jc.Status = models.JourneyContactCompleted
	jc.CompletedAt = &now
	jc.UpdatedAt = now

	err := e.store.JourneyContacts().Save(ctx, jc)
	if err != nil {
		return fmt.Errorf("failed to complete journey contact %s: %w", jc.ID, err)
	}

	e.logger.InfoContext(ctx, "journey completed", "journey_contact_id", jc.ID, "journey_id", jc.JourneyID)
	e.publishContact(ctx, events.ContactCompletedEvent, jc, "")

	return nil
}

func (e *Engine) closeMembership(ctx context.Context, jc *models.JourneyContact, eventType events.EventType, reason string) error {
	_, err := e.store.Executions().CancelPending(ctx, jc.ID, reason, e.now())
	if err != nil {
		return fmt.Errorf("failed to cancel pending executions: %w", err)
	}

	err = e.store.JourneyContacts().Save(ctx, jc)
	if err != nil {
		return fmt.Errorf("failed to save journey contact %s: %w", jc.ID, err)
	}

	e.logger.InfoContext(ctx, "journey contact closed",
		"journey_contact_id", jc.ID,
		"journey_id", jc.JourneyID,
		"status", jc.Status,
		"reason", reason,
	)

	e.publishContact(ctx, eventType, jc, reason)

	return nil
}

func (e *Engine) publishContact(ctx context.Context, eventType events.EventType, jc *models.JourneyContact, reason string) {
	e.publish(ctx, jc.ID, events.ContactEvent{
		BaseEvent:        events.NewBase(eventType, jc.TenantID, jc.JourneyID, e.now()),
		JourneyContactID: jc.ID,
		ContactID:        jc.ContactID,
		NodeID:           jc.CurrentNodeID,
		Reason:           reason,
	})
}

func (e *Engine) publishExecution(ctx context.Context, exec *models.JourneyNodeExecution) {
	eventType := events.ExecutionCompletedEvent
	if exec.Status == models.ExecutionFailed {
		eventType = events.ExecutionFailedEvent
	}

	e.publish(ctx, exec.JourneyContactID, events.ExecutionEvent{
		BaseEvent:        events.NewBase(eventType, exec.TenantID, exec.JourneyID, e.now()),
		ExecutionID:      exec.ID,
		JourneyContactID: exec.JourneyContactID,
		NodeID:           exec.NodeID,
		NodeType:         string(exec.NodeType),
		Outcome:          exec.Result.Outcome,
		Reason:           exec.Result.Reason,
		Error:            exec.Result.Error,
	})
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
