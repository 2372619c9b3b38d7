package engine

import (
	"context"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
)

// conversation answers condition lookups about the contact's activity since enrollment.
type conversation struct {
	store persistence.Persistence
	jc    *models.JourneyContact
}

func newConversation(store persistence.Persistence, jc *models.JourneyContact) *conversation {
	return &conversation{store: store, jc: jc}
}

// HasInboundMessage looks for replies since enrollment. Without a campaign the
// lookup is limited to this journey.
func (c *conversation) HasInboundMessage(ctx context.Context, scope protocol.MessageScope) (bool, error) {
	if scope.CampaignID == "" && scope.JourneyID == "" {
		scope.JourneyID = c.jc.JourneyID
	}

	return c.store.Messages().HasInbound(ctx, persistence.MessageQuery{
		TenantID:   c.jc.TenantID,
		ContactID:  c.jc.ContactID,
		Since:      c.jc.EnrolledAt,
		JourneyID:  scope.JourneyID,
		CampaignID: scope.CampaignID,
	})
}

func (c *conversation) LastCallOutcome(ctx context.Context) (string, error) {
	exec, err := c.store.Executions().LatestCompletedByType(ctx, c.jc.ID, models.NodeTypeMakeCall)
	if err != nil || exec == nil {
		return "", err
	}

	return exec.Result.Outcome, nil
}
