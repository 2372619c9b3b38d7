// Package campaign implements the ADD_TO_CAMPAIGN and REMOVE_FROM_CAMPAIGN nodes.
package campaign

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
)

// Store is the campaign membership the executors mutate.
type Store interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Campaign, error)
	AddMember(ctx context.Context, campaignID, contactID string) error
	RemoveMember(ctx context.Context, campaignID, contactID string) error
}

// Executor adds a contact to, or removes it from, a campaign.
type Executor struct {
	nodeType models.NodeType
	store    Store
	logger   *slog.Logger
}

// NewAdd creates the ADD_TO_CAMPAIGN executor.
func NewAdd(logger *slog.Logger, store Store) *Executor {
	return &Executor{nodeType: models.NodeTypeAddToCampaign, store: store, logger: logger}
}

// NewRemove creates the REMOVE_FROM_CAMPAIGN executor.
func NewRemove(logger *slog.Logger, store Store) *Executor {
	return &Executor{nodeType: models.NodeTypeRemoveFromCampaign, store: store, logger: logger}
}

func (e *Executor) Type() models.NodeType {
	return e.nodeType
}

func (e *Executor) Name() string {
	if e.adds() {
		return "Add to Campaign"
	}

	return "Remove from Campaign"
}

func (e *Executor) Description() string {
	if e.adds() {
		return "Adds the contact to a campaign; adding an existing member is a no-op"
	}

	return "Removes the contact from a campaign; removing a non-member is a no-op"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"campaign_id": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []string{"campaign_id"},
	}
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.CampaignConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	tenantID := in.TenantID()
	contactID := in.JourneyContact.ContactID

	_, err = e.store.GetByID(ctx, tenantID, cfg.CampaignID)
	if err != nil {
		if errors.Is(err, persistence.ErrCampaignNotFound) {
			return protocol.Failure("campaign_not_found", err), nil
		}

		return protocol.Failure("campaign_lookup_failed", err), nil
	}

	data := map[string]any{"campaign_id": cfg.CampaignID}

	if e.adds() {
		err = e.store.AddMember(ctx, cfg.CampaignID, contactID)
		if err != nil {
			return protocol.Failure("campaign_update_failed", err), nil
		}

		e.logger.InfoContext(ctx, "contact added to campaign", "campaign_id", cfg.CampaignID, "contact_id", contactID)

		return protocol.Result{Outcome: models.OutcomeAdded, Data: data}, nil
	}

	err = e.store.RemoveMember(ctx, cfg.CampaignID, contactID)
	if err != nil {
		return protocol.Failure("campaign_update_failed", err), nil
	}

	e.logger.InfoContext(ctx, "contact removed from campaign", "campaign_id", cfg.CampaignID, "contact_id", contactID)

	return protocol.Result{Outcome: models.OutcomeRemoved, Data: data}, nil
}

func (e *Executor) adds() bool {
	return e.nodeType == models.NodeTypeAddToCampaign
}
