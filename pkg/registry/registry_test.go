package registry

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	return NewDefault(slog.Default(), Dependencies{Persistence: file.NewPersistence(t.TempDir())})
}

func TestRegisterDefaultNodes(t *testing.T) {
	r := newTestRegistry(t)

	executors := r.Executors()
	require.Len(t, executors, len(models.NodeTypes))

	for _, nodeType := range models.NodeTypes {
		executor, err := r.Get(nodeType)
		require.NoError(t, err, nodeType)
		assert.Equal(t, nodeType, executor.Type())
		assert.NotEmpty(t, executor.Name())
		assert.NotEmpty(t, executor.Description())
		assert.Equal(t, "object", executor.Schema()["type"])
	}
}

func TestRegistry_UnknownTypeIsConfigError(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("SEND_FAX")
	require.ErrorIs(t, err, models.ErrUnknownNodeType)

	_, err = r.Execute(t.Context(), &protocol.ExecutionInput{
		Journey: &models.Journey{ID: "j1"},
		Node:    &models.JourneyNode{ID: "n1", Type: "SEND_FAX"},
	})
	require.Error(t, err)
	assert.True(t, protocol.IsConfigError(err))
}

func TestRegistry_Execute(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	result, err := r.Execute(t.Context(), &protocol.ExecutionInput{
		Now:     now,
		Journey: &models.Journey{ID: "j1"},
		Node: &models.JourneyNode{
			ID:     "n1",
			Type:   models.NodeTypeTimeDelay,
			Config: &models.TimeDelayConfig{DelayValue: 30, DelayUnit: models.DelayUnitMinutes},
		},
		Contact: &models.Contact{ID: "c1"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeWaited, result.Outcome)
	assert.Equal(t, now.Add(30*time.Minute), *result.DelayUntil)
}

func TestRegistry_ValidateConfig(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		node    *models.JourneyNode
		wantErr bool
	}{
		{
			name: "sms content",
			node: &models.JourneyNode{Type: models.NodeTypeSendSMS, Config: &models.SendSMSConfig{Content: "hi"}},
		},
		{
			name:    "sms without content or template",
			node:    &models.JourneyNode{Type: models.NodeTypeSendSMS, Config: &models.SendSMSConfig{}},
			wantErr: true,
		},
		{
			name: "webhook by reference",
			node: &models.JourneyNode{Type: models.NodeTypeExecuteWebhook, Config: &models.WebhookConfig{WebhookID: "wh-1"}},
		},
		{
			name:    "webhook without target",
			node:    &models.JourneyNode{Type: models.NodeTypeExecuteWebhook, Config: &models.WebhookConfig{Method: "POST"}},
			wantErr: true,
		},
		{
			name:    "webhook bad method",
			node:    &models.JourneyNode{Type: models.NodeTypeExecuteWebhook, Config: &models.WebhookConfig{URL: "https://x", Method: "TRACE"}},
			wantErr: true,
		},
		{
			name: "delay at time",
			node: &models.JourneyNode{Type: models.NodeTypeTimeDelay, Config: &models.TimeDelayConfig{DelayAtTime: "09:30"}},
		},
		{
			name:    "delay at impossible time",
			node:    &models.JourneyNode{Type: models.NodeTypeTimeDelay, Config: &models.TimeDelayConfig{DelayAtTime: "25:00"}},
			wantErr: true,
		},
		{
			name:    "campaign without id",
			node:    &models.JourneyNode{Type: models.NodeTypeAddToCampaign, Config: &models.CampaignConfig{}},
			wantErr: true,
		},
		{
			name: "call with audio file",
			node: &models.JourneyNode{Type: models.NodeTypeMakeCall, Config: &models.MakeCallConfig{AudioFile: "intro.mp3"}},
		},
		{
			name:    "call without audio",
			node:    &models.JourneyNode{Type: models.NodeTypeMakeCall, Config: &models.MakeCallConfig{}},
			wantErr: true,
		},
		{
			name: "condition",
			node: &models.JourneyNode{Type: models.NodeTypeCondition, Config: &models.ConditionConfig{}},
		},
		{
			name:    "missing config",
			node:    &models.JourneyNode{Type: models.NodeTypeWeightedPath},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateConfig(tt.node)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestRegistry_HealthCheck(t *testing.T) {
	message, ok := newTestRegistry(t).HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "9 executors registered", message)

	message, ok = NewRegistry(slog.Default()).HealthCheck()
	assert.False(t, ok)
	assert.Contains(t, message, string(models.NodeTypeSendSMS))
}

func TestNewSchemas(t *testing.T) {
	r := NewSchemas(slog.Default())
	require.Len(t, r.Executors(), len(models.NodeTypes))

	node := &models.JourneyNode{
		ID:     "n1",
		Type:   models.NodeTypeMakeCall,
		Config: &models.MakeCallConfig{AudioFile: "intro.mp3"},
	}
	require.NoError(t, r.ValidateConfig(node))
}
