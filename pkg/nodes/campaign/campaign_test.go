package campaign

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(nodeType models.NodeType, campaignID string) *protocol.ExecutionInput {
	return &protocol.ExecutionInput{
		Journey: &models.Journey{ID: "j1", TenantID: "t1"},
		Node: &models.JourneyNode{
			ID:     "n1",
			Type:   nodeType,
			Config: &models.CampaignConfig{CampaignID: campaignID},
		},
		JourneyContact: &models.JourneyContact{ID: "jc1", TenantID: "t1", ContactID: "c1"},
	}
}

func TestExecutor_AddAndRemoveAreIdempotent(t *testing.T) {
	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.Campaigns().Save(ctx, &models.Campaign{ID: "camp-1", TenantID: "t1", Name: "Nurture"}))

	add := NewAdd(slog.Default(), store.Campaigns())
	remove := NewRemove(slog.Default(), store.Campaigns())

	for range 2 {
		result, err := add.Execute(ctx, input(models.NodeTypeAddToCampaign, "camp-1"))
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAdded, result.Outcome)
	}

	member, err := store.Campaigns().IsMember(ctx, "camp-1", "c1")
	require.NoError(t, err)
	assert.True(t, member)

	for range 2 {
		result, err := remove.Execute(ctx, input(models.NodeTypeRemoveFromCampaign, "camp-1"))
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeRemoved, result.Outcome)
	}

	member, err = store.Campaigns().IsMember(ctx, "camp-1", "c1")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestExecutor_UnknownCampaignFails(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	result, err := NewAdd(slog.Default(), store.Campaigns()).Execute(t.Context(), input(models.NodeTypeAddToCampaign, "missing"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "campaign_not_found", result.Reason)
}

func TestExecutor_OtherTenantCampaignFails(t *testing.T) {
	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.Campaigns().Save(ctx, &models.Campaign{ID: "camp-2", TenantID: "t2"}))

	result, err := NewAdd(slog.Default(), store.Campaigns()).Execute(ctx, input(models.NodeTypeAddToCampaign, "camp-2"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
}

type brokenStore struct{ Store }

func (brokenStore) GetByID(context.Context, string, string) (*models.Campaign, error) {
	return &models.Campaign{ID: "camp"}, nil
}

func (brokenStore) AddMember(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestExecutor_StoreErrorFails(t *testing.T) {
	result, err := NewAdd(slog.Default(), brokenStore{}).Execute(t.Context(), input(models.NodeTypeAddToCampaign, "camp"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "disk full", result.Error)
}
