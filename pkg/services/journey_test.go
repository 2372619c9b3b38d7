package services_test

import (
	"log/slog"
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/registry"
	"github.com/dukex/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenantID = "tenant-1"

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) InvalidateJourney(journeyID string) {
	c.invalidated = append(c.invalidated, journeyID)
}

type testServices struct {
	store    *file.Persistence
	cache    *recordingCache
	journeys *services.Journey
	nodes    *services.Node
}

func setupServices(t *testing.T) *testServices {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	cache := &recordingCache{}
	reg := registry.NewDefault(slog.Default(), registry.Dependencies{Persistence: store})
	journeys := services.NewJourney(store, validator.New(validator.WithRequiredStructEnabled()), reg, cache)

	return &testServices{
		store:    store,
		cache:    cache,
		journeys: journeys,
		nodes:    services.NewNode(journeys),
	}
}

func (s *testServices) draft(t *testing.T) *models.Journey {
	t.Helper()

	journey, err := s.journeys.Create(t.Context(), services.CreateJourneyRequest{
		TenantID: testTenantID,
		Name:     "New leads",
	})
	require.NoError(t, err)

	return journey
}

func TestJourney_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		request services.CreateJourneyRequest
		wantErr error
	}{
		{
			name:    "valid",
			request: services.CreateJourneyRequest{TenantID: testTenantID, Name: "New leads"},
		},
		{
			name:    "missing tenant",
			request: services.CreateJourneyRequest{Name: "New leads"},
			wantErr: services.ErrInvalidRequest,
		},
		{
			name:    "short name",
			request: services.CreateJourneyRequest{TenantID: testTenantID, Name: "ab"},
			wantErr: services.ErrInvalidRequest,
		},
		{
			name: "bad schedule",
			request: services.CreateJourneyRequest{
				TenantID: testTenantID,
				Name:     "New leads",
				Schedule: &models.ScheduleConstraints{StartTime: "9am", EndTime: "17:00"},
			},
			wantErr: services.ErrInvalidRequest,
		},
		{
			name: "unknown removal condition",
			request: services.CreateJourneyRequest{
				TenantID: testTenantID,
				Name:     "New leads",
				RemovalCriteria: models.RemovalCriteria{
					Conditions: []models.RemovalCondition{{Type: "sentiment"}},
				},
			},
			wantErr: services.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupServices(t)

			journey, err := s.journeys.Create(t.Context(), tt.request)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, services.IsValidationError(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.JourneyStatusDraft, journey.Status)
			assert.NotEmpty(t, journey.ID)
			assert.NotEmpty(t, journey.RemovalCriteria.WebhookToken)

			stored, err := s.journeys.Get(t.Context(), testTenantID, journey.ID)
			require.NoError(t, err)
			assert.Equal(t, journey.Name, stored.Name)
		})
	}
}

func TestJourney_GetOtherTenant(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	journey := s.draft(t)

	_, err := s.journeys.Get(t.Context(), "tenant-2", journey.ID)
	require.ErrorIs(t, err, persistence.ErrJourneyNotFound)

	_, err = s.journeys.Get(t.Context(), "", journey.ID)
	require.ErrorIs(t, err, services.ErrEmptyTenantID)
}

func TestJourney_Lifecycle(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	ctx := t.Context()
	journey := s.draft(t)

	_, err := s.journeys.Launch(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, services.ErrInvalidGraph, "a journey without nodes cannot launch")

	_, err = s.nodes.AddNode(ctx, testTenantID, journey.ID, services.AddNodeRequest{
		Type:   models.NodeTypeTimeDelay,
		Name:   "wait a day",
		Config: []byte(`{"delay_value": 1, "delay_unit": "DAYS"}`),
	})
	require.NoError(t, err)

	_, err = s.journeys.Pause(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, services.ErrInvalidTransition)

	launched, err := s.journeys.Launch(ctx, testTenantID, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, launched.Status)
	require.NotNil(t, launched.StartedAt)

	_, err = s.journeys.Launch(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, services.ErrInvalidTransition)

	err = s.journeys.Delete(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.True(t, services.IsConflictError(err))

	paused, err := s.journeys.Pause(ctx, testTenantID, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)

	resumed, err := s.journeys.Resume(ctx, testTenantID, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)

	archived, err := s.journeys.Archive(ctx, testTenantID, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusArchived, archived.Status)

	name := "Renamed"
	_, err = s.journeys.Update(ctx, testTenantID, journey.ID, services.UpdateJourneyRequest{Name: &name})
	require.ErrorIs(t, err, services.ErrCannotModifyArchived)

	_, err = s.journeys.Resume(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, services.ErrInvalidTransition)

	require.NoError(t, s.journeys.Delete(ctx, testTenantID, journey.ID))

	_, err = s.journeys.Get(ctx, testTenantID, journey.ID)
	require.ErrorIs(t, err, persistence.ErrJourneyNotFound)

	assert.Contains(t, s.cache.invalidated, journey.ID)
}

func TestJourney_Update(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	journey := s.draft(t)

	name := "Reactivation"
	autoEnroll := true

	updated, err := s.journeys.Update(t.Context(), testTenantID, journey.ID, services.UpdateJourneyRequest{
		Name:       &name,
		AutoEnroll: &autoEnroll,
		RemovalCriteria: &models.RemovalCriteria{
			Conditions: []models.RemovalCondition{{Type: models.RemovalCallTransferred}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Reactivation", updated.Name)
	assert.True(t, updated.AutoEnroll)
	assert.Len(t, updated.RemovalCriteria.Conditions, 1)

	short := "no"
	_, err = s.journeys.Update(t.Context(), testTenantID, journey.ID, services.UpdateJourneyRequest{Name: &short})
	require.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestJourney_List(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	s.draft(t)
	s.draft(t)

	journeys, err := s.journeys.List(t.Context(), testTenantID)
	require.NoError(t, err)
	assert.Len(t, journeys, 2)

	journeys, err = s.journeys.List(t.Context(), "tenant-2")
	require.NoError(t, err)
	assert.Empty(t, journeys)
}

func TestJourney_HealthCheck(t *testing.T) {
	t.Parallel()

	s := setupServices(t)

	message, healthy := s.journeys.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)
}
