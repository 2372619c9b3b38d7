package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/businesshours"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/nodes/delay"
	"github.com/dukex/journey/pkg/rules"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

type scheduleRequest struct {
	journey  *models.Journey
	jc       *models.JourneyContact
	node     *models.JourneyNode
	contact  *models.Contact
	settings *models.TenantSettings

	// base is when the previous node asked its successor to start. Zero means now.
	base       time.Time
	enrollment bool
	depth      int
}

// schedule creates the PENDING execution of req.node and runs it inline when
// it is already due. An open execution of the same node for the same journey
// contact is returned as is.
func (e *Engine) schedule(ctx context.Context, req scheduleRequest) (*models.JourneyNodeExecution, error) {
	now := e.now()

	at, err := e.scheduledTime(ctx, req, now)
	if err != nil {
		return nil, err
	}

	exec := &models.JourneyNodeExecution{
		ID:               uuid.NewString(),
		TenantID:         req.jc.TenantID,
		JourneyID:        req.jc.JourneyID,
		JourneyContactID: req.jc.ID,
		NodeID:           req.node.ID,
		NodeType:         req.node.Type,
		Enrollment:       req.jc.Enrollment,
		Status:           models.ExecutionPending,
		ScheduledAt:      at,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, created, err := e.store.Executions().CreatePending(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution for node %s: %w", req.node.ID, err)
	}

	if !created {
		e.logger.DebugContext(ctx, "execution already open",
			"journey_contact_id", req.jc.ID,
			"node_id", req.node.ID,
			"execution_id", stored.ID,
		)

		return stored, nil
	}

	req.jc.CurrentNodeID = req.node.ID
	req.jc.UpdatedAt = now

	err = e.store.JourneyContacts().Save(ctx, req.jc)
	if err != nil {
		return nil, fmt.Errorf("failed to move journey contact %s: %w", req.jc.ID, err)
	}

	e.logger.DebugContext(ctx, "execution scheduled",
		"journey_contact_id", req.jc.ID,
		"node_id", req.node.ID,
		"node_type", req.node.Type,
		"scheduled_at", at,
	)

	if at.After(now) {
		return stored, nil
	}

	if req.depth >= e.options.MaxInlineDepth {
		e.logger.DebugContext(ctx, "inline depth reached, leaving execution to the poller",
			"execution_id", stored.ID,
			"depth", req.depth,
		)

		return stored, nil
	}

	err = e.run(ctx, stored, req.depth+1)
	if err != nil {
		return stored, err
	}

	return stored, nil
}

func (e *Engine) scheduledTime(ctx context.Context, req scheduleRequest, now time.Time) (time.Time, error) {
	at := now
	if req.base.After(now) {
		at = req.base
	}

	if req.enrollment {
		window, _, _, err := rules.Window(req.settings, req.journey)
		if err != nil {
			return time.Time{}, err
		}

		if window != nil && !window.IsOpen(at) {
			at = window.NextOpen(at)
		}
	}

	loc := delay.Location(req.contact, req.settings)
	if businesshours.CalendarDaysBetween(now, at, loc) > 0 {
		at = at.Add(Spread(req.jc.ID, e.options.SpreadWindow))
	}

	if req.node.Type == models.NodeTypeMakeCall && req.contact != nil && req.contact.Phone != "" {
		last, err := e.store.CallLogs().LatestForPhone(ctx, req.jc.TenantID, req.contact.Phone)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to load last call: %w", err)
		}

		if last != nil {
			earliest := last.StartedAt.Add(e.options.CallCooldown)
			if earliest.After(at) {
				at = earliest
			}
		}
	}

	return at.UTC(), nil
}

// Spread returns a stable offset within window for key, so executions that
// land on a future day do not all fire at the same instant.
func Spread(key string, window time.Duration) time.Duration {
	seconds := uint32(window / time.Second)
	if seconds == 0 {
		return 0
	}

	return time.Duration(murmur3.Sum32([]byte(key))%seconds) * time.Second
}
