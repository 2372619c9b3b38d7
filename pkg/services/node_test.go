package services_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServices) addDelay(t *testing.T, journeyID string, conns models.Connections) *models.JourneyNode {
	t.Helper()

	node, err := s.nodes.AddNode(t.Context(), testTenantID, journeyID, services.AddNodeRequest{
		Type:        models.NodeTypeTimeDelay,
		Name:        "wait",
		Config:      json.RawMessage(`{"delay_value": 2, "delay_unit": "HOURS"}`),
		Connections: conns,
	})
	require.NoError(t, err)

	return node
}

func TestNode_AddNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		request   func(existing *models.JourneyNode) services.AddNodeRequest
		wantErr   error
		checkNode func(t *testing.T, node *models.JourneyNode)
	}{
		{
			name: "sms with inline content",
			request: func(existing *models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:        models.NodeTypeSendSMS,
					Name:        "welcome",
					Config:      json.RawMessage(`{"content_mode": "content", "content": "Hi {{firstName}}"}`),
					Connections: models.Connections{NextNodeID: existing.ID},
				}
			},
			checkNode: func(t *testing.T, node *models.JourneyNode) {
				t.Helper()

				cfg, ok := node.Config.(*models.SendSMSConfig)
				require.True(t, ok)
				assert.Equal(t, "Hi {{firstName}}", cfg.Content)
			},
		},
		{
			name: "condition with one branch",
			request: func(existing *models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type: models.NodeTypeCondition,
					Name: "sold?",
					Connections: models.Connections{
						Branches: []models.Branch{{
							Condition:  models.Condition{Field: "contact.leadStatus", Operator: "equals", Value: "SOLD"},
							NextNodeID: existing.ID,
						}},
					},
				}
			},
		},
		{
			name: "unknown type",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{Type: "SEND_FAX", Name: "fax"}
			},
			wantErr: services.ErrUnknownNodeType,
		},
		{
			name: "missing name",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{Type: models.NodeTypeTimeDelay}
			},
			wantErr: services.ErrInvalidRequest,
		},
		{
			name: "config failing struct validation",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:   models.NodeTypeTimeDelay,
					Name:   "wait",
					Config: json.RawMessage(`{"delay_value": 1, "delay_unit": "WEEKS"}`),
				}
			},
			wantErr: services.ErrInvalidConfig,
		},
		{
			name: "config failing schema validation",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:   models.NodeTypeSendSMS,
					Name:   "empty sms",
					Config: json.RawMessage(`{"content_mode": "content"}`),
				}
			},
			wantErr: services.ErrInvalidConfig,
		},
		{
			name: "malformed config",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:   models.NodeTypeTimeDelay,
					Name:   "wait",
					Config: json.RawMessage(`{"delay_value": "one"}`),
				}
			},
			wantErr: services.ErrInvalidConfig,
		},
		{
			name: "non canonical edge",
			request: func(existing *models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:        models.NodeTypeTimeDelay,
					Name:        "wait",
					Config:      json.RawMessage(`{"delay_value": 1}`),
					Connections: models.Connections{NextNodeID: "{" + existing.ID + "}"},
				}
			},
			wantErr: services.ErrInvalidEdge,
		},
		{
			name: "edge to a node of another journey",
			request: func(*models.JourneyNode) services.AddNodeRequest {
				return services.AddNodeRequest{
					Type:        models.NodeTypeTimeDelay,
					Name:        "wait",
					Config:      json.RawMessage(`{"delay_value": 1}`),
					Connections: models.Connections{NextNodeID: uuid.NewString()},
				}
			},
			wantErr: services.ErrInvalidEdge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupServices(t)
			journey := s.draft(t)
			existing := s.addDelay(t, journey.ID, models.Connections{})

			node, err := s.nodes.AddNode(t.Context(), testTenantID, journey.ID, tt.request(existing))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, services.IsValidationError(err))

				nodes, err := s.nodes.ListNodes(t.Context(), testTenantID, journey.ID)
				require.NoError(t, err)
				assert.Len(t, nodes, 1)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, journey.ID, node.JourneyID)

			stored, err := s.nodes.GetNode(t.Context(), testTenantID, journey.ID, node.ID)
			require.NoError(t, err)
			assert.Equal(t, node.Name, stored.Name)

			if tt.checkNode != nil {
				tt.checkNode(t, stored)
			}
		})
	}
}

func TestNode_UpdateNode(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	journey := s.draft(t)
	target := s.addDelay(t, journey.ID, models.Connections{})
	node := s.addDelay(t, journey.ID, models.Connections{})

	updated, err := s.nodes.UpdateNode(t.Context(), testTenantID, journey.ID, node.ID, services.UpdateNodeRequest{
		Name:        "wait longer",
		Config:      json.RawMessage(`{"delay_value": 3, "delay_unit": "DAYS"}`),
		Connections: models.Connections{NextNodeID: target.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTimeDelay, updated.Type)
	assert.Equal(t, node.CreatedAt, updated.CreatedAt)

	stored, err := s.nodes.GetNode(t.Context(), testTenantID, journey.ID, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "wait longer", stored.Name)
	assert.Equal(t, target.ID, stored.Connections.NextNodeID)

	cfg, ok := stored.Config.(*models.TimeDelayConfig)
	require.True(t, ok)
	assert.Equal(t, 3, cfg.DelayValue)

	_, err = s.nodes.UpdateNode(t.Context(), testTenantID, journey.ID, uuid.NewString(), services.UpdateNodeRequest{Name: "ghost"})
	require.ErrorIs(t, err, persistence.ErrNodeNotFound)
}

func TestNode_DeleteNode(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	journey := s.draft(t)
	target := s.addDelay(t, journey.ID, models.Connections{})
	source := s.addDelay(t, journey.ID, models.Connections{NextNodeID: target.ID})

	err := s.nodes.DeleteNode(t.Context(), testTenantID, journey.ID, target.ID)
	require.ErrorIs(t, err, services.ErrNodeReferenced)
	assert.True(t, services.IsConflictError(err))

	require.NoError(t, s.nodes.DeleteNode(t.Context(), testTenantID, journey.ID, source.ID))
	require.NoError(t, s.nodes.DeleteNode(t.Context(), testTenantID, journey.ID, target.ID))

	err = s.nodes.DeleteNode(t.Context(), testTenantID, journey.ID, target.ID)
	require.ErrorIs(t, err, persistence.ErrNodeNotFound)

	assert.Contains(t, s.cache.invalidated, journey.ID)
}

func TestNode_ArchivedJourneyIsReadOnly(t *testing.T) {
	t.Parallel()

	s := setupServices(t)
	journey := s.draft(t)
	node := s.addDelay(t, journey.ID, models.Connections{})

	_, err := s.journeys.Archive(t.Context(), testTenantID, journey.ID)
	require.NoError(t, err)

	_, err = s.nodes.AddNode(t.Context(), testTenantID, journey.ID, services.AddNodeRequest{
		Type:   models.NodeTypeTimeDelay,
		Name:   "wait",
		Config: json.RawMessage(`{"delay_value": 1}`),
	})
	require.ErrorIs(t, err, services.ErrCannotModifyArchived)

	err = s.nodes.DeleteNode(t.Context(), testTenantID, journey.ID, node.ID)
	require.ErrorIs(t, err, services.ErrCannotModifyArchived)

	nodes, err := s.nodes.ListNodes(t.Context(), testTenantID, journey.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}
