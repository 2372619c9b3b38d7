// Package rules implements the execution rules gate consulted before each
// node execution: after-hours handling and duplicate-lead detection.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/businesshours"
	"github.com/dukex/journey/pkg/models"
)

// Reasons attached to blocking decisions.
const (
	ReasonAfterHours   = "outside_business_hours"
	ReasonResubmission = "duplicate_lead"
)

// EnrollmentLookup finds other active enrollments of the same phone number.
type EnrollmentLookup interface {
	ActiveEnrollmentsByPhone(ctx context.Context, tenantID, phone string, since time.Time, excludeJourneyID string) ([]*models.JourneyContact, error)
}

// Input is what the gate needs to decide on one execution attempt.
type Input struct {
	Now            time.Time
	ScheduledAt    time.Time
	NodeType       models.NodeType
	Settings       *models.TenantSettings
	Journey        *models.Journey
	Contact        *models.Contact
	JourneyContact *models.JourneyContact
}

// Decision is advisory. Callers apply the side effect.
type Decision struct {
	ShouldExecute    bool
	Action           models.GateAction
	Reason           string
	NewScheduledTime *time.Time
	TargetNodeID     string
}

// Proceed is the decision that lets an execution run.
var Proceed = Decision{ShouldExecute: true}

// Gate evaluates tenant rules.
type Gate struct {
	logger      *slog.Logger
	enrollments EnrollmentLookup
}

// NewGate creates a gate. enrollments may be nil, which disables resubmission detection.
func NewGate(logger *slog.Logger, enrollments EnrollmentLookup) *Gate {
	return &Gate{
		logger:      logger.With("module", "rules_gate"),
		enrollments: enrollments,
	}
}

// Evaluate decides whether the execution described by in may run now.
func (g *Gate) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if in.NodeType == models.NodeTypeTimeDelay {
		return Proceed, nil
	}

	if in.Settings == nil {
		in.Settings = &models.TenantSettings{}
	}

	if decision, blocked, err := g.afterHours(in); err != nil || blocked {
		return decision, err
	}

	return g.resubmission(ctx, in)
}

func (g *Gate) afterHours(in Input) (Decision, bool, error) {
	window, action, defaultNode, err := Window(in.Settings, in.Journey)
	if err != nil || window == nil {
		return Decision{}, false, err
	}

	nowOpen := window.IsOpen(in.Now)
	scheduledOpen := in.ScheduledAt.IsZero() || window.IsOpen(in.ScheduledAt)

	if nowOpen && scheduledOpen {
		return Decision{}, false, nil
	}

	decision := Decision{Action: action, Reason: ReasonAfterHours}

	switch action {
	case models.GateActionSkip, models.GateActionPause:
	case models.GateActionDefaultEvent:
		if defaultNode == "" {
			return Decision{}, false, fmt.Errorf("after-hours action %q requires a default event node", action)
		}

		decision.TargetNodeID = defaultNode
	default:
		decision.Action = models.GateActionReschedule
		next := window.NextOpen(in.Now)
		decision.NewScheduledTime = &next
	}

	return decision, true, nil
}

func (g *Gate) resubmission(ctx context.Context, in Input) (Decision, error) {
	rule := in.Settings.Resubmission

	if !rule.Enabled || g.enrollments == nil || in.Contact == nil || in.Contact.Phone == "" {
		return Proceed, nil
	}

	if rule.Action == models.GateActionContinue {
		return Proceed, nil
	}

	journeyID := ""
	if in.Journey != nil {
		journeyID = in.Journey.ID
	}

	since := in.Now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)

	others, err := g.enrollments.ActiveEnrollmentsByPhone(ctx, in.Settings.TenantID, in.Contact.Phone, since, journeyID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up enrollments for resubmission check: %w", err)
	}

	if len(others) == 0 {
		return Proceed, nil
	}

	g.logger.InfoContext(ctx, "duplicate lead detected",
		"contact_id", in.Contact.ID,
		"journey_id", journeyID,
		"other_enrollments", len(others),
		"action", rule.Action,
	)

	decision := Decision{Action: rule.Action, Reason: ReasonResubmission}

	switch rule.Action {
	case models.GateActionReschedule:
		next := in.Now.Add(time.Duration(rule.RescheduleDelayMinutes) * time.Minute)
		decision.NewScheduledTime = &next
	case models.GateActionDefaultEvent:
		if rule.DefaultEventNodeID == "" {
			return Decision{}, fmt.Errorf("resubmission action %q requires a default event node", rule.Action)
		}

		decision.TargetNodeID = rule.DefaultEventNodeID
	case models.GateActionPause:
	default:
		decision.Action = models.GateActionSkip
	}

	return decision, nil
}

// Window returns the business window that applies to a journey: its own
// schedule when set, else the tenant's business hours when enabled. A nil
// window means after-hours handling is off.
func Window(settings *models.TenantSettings, journey *models.Journey) (*businesshours.Window, models.GateAction, string, error) {
	var tenantTZ string
	if settings != nil {
		tenantTZ = settings.Timezone
	}

	if journey != nil && journey.Schedule != nil && journey.Schedule.StartTime != "" {
		s := journey.Schedule
		loc := businesshours.ResolveLocation(s.Timezone, tenantTZ)

		w, err := businesshours.New(s.Days, s.StartTime, s.EndTime, loc)
		if err != nil {
			return nil, "", "", fmt.Errorf("invalid journey schedule: %w", err)
		}

		action := models.GateActionReschedule
		defaultNode := ""

		if settings != nil && settings.BusinessHours.Action != "" {
			action = settings.BusinessHours.Action
			defaultNode = settings.BusinessHours.DefaultEventNodeID
		}

		return w, action, defaultNode, nil
	}

	if settings == nil || !settings.BusinessHours.Enabled {
		return nil, "", "", nil
	}

	bh := settings.BusinessHours
	loc := businesshours.ResolveLocation(bh.Timezone, tenantTZ)

	w, err := businesshours.New(bh.Days, bh.StartTime, bh.EndTime, loc)
	if err != nil {
		return nil, "", "", fmt.Errorf("invalid business hours: %w", err)
	}

	return w, bh.Action, bh.DefaultEventNodeID, nil
}
