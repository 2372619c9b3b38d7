package sms_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/nodes/sms"
	"github.com/dukex/journey/pkg/numberpool"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMessenger struct{ mock.Mock }

func (m *mockMessenger) SendSMS(ctx context.Context, tenantID, to, body, fromHint string) (*protocol.SendResult, error) {
	args := m.Called(ctx, tenantID, to, body, fromHint)

	if v := args.Get(0); v != nil {
		return v.(*protocol.SendResult), args.Error(1)
	}

	return nil, args.Error(1)
}

type mockTemplates struct{ mock.Mock }

func (m *mockTemplates) Render(ctx context.Context, tenantID string, ref protocol.TemplateRef, vars map[string]any) (string, error) {
	args := m.Called(ctx, tenantID, ref, vars)

	return args.String(0), args.Error(1)
}

type staticGate struct {
	decision *protocol.ComplianceDecision
	err      error
	calls    int
}

func (g *staticGate) CheckCompliance(context.Context, string, *models.Contact, protocol.ActionType, map[string]any) (*protocol.ComplianceDecision, error) {
	g.calls++

	return g.decision, g.err
}

func input(cfg *models.SendSMSConfig, contact *models.Contact) *protocol.ExecutionInput {
	return &protocol.ExecutionInput{
		Now:            time.Now(),
		Journey:        &models.Journey{ID: "j1", TenantID: "t1"},
		Node:           &models.JourneyNode{ID: "sms-1", Type: models.NodeTypeSendSMS, Config: cfg},
		JourneyContact: &models.JourneyContact{ID: "jc1", TenantID: "t1", ContactID: contact.ID},
		Contact:        contact,
		Settings: &models.TenantSettings{
			TenantID:       "t1",
			BookingURL:     "https://book.example.com/visit",
			SendingNumbers: []models.SendingNumber{{Number: "+15550000001", DailyCap: 1}},
		},
	}
}

func newPool() *numberpool.Pool {
	return numberpool.New(numberpool.NewMemoryCounter(), nil)
}

func TestExecutor_SendsRenderedContent(t *testing.T) {
	messenger := &mockMessenger{}
	messenger.On("SendSMS", mock.Anything, "t1", "+15551112222",
		"Hi Ada, book here: https://book.example.com/visit?contact=c1&journey=j1", "+15550000001").
		Return(&protocol.SendResult{ID: "SM1"}, nil)

	gate := &staticGate{decision: &protocol.ComplianceDecision{CanProceed: true}}
	exec := sms.New(slog.Default(), gate, messenger, nil, newPool())

	result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{
		Content:            "Hi {{firstName}}, book here: {{bookingLink}}",
		IncludeBookingLink: true,
	}, &models.Contact{ID: "c1", FirstName: "Ada", Phone: "+15551112222"}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSent, result.Outcome)
	assert.Equal(t, "SM1", result.Data["message_id"])
	assert.Equal(t, 1, gate.calls)
	messenger.AssertExpectations(t)
}

func TestExecutor_OptedOutShortCircuits(t *testing.T) {
	messenger := &mockMessenger{}
	gate := &staticGate{}
	exec := sms.New(slog.Default(), gate, messenger, nil, newPool())

	result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{Content: "hi"},
		&models.Contact{ID: "c1", Phone: "+15551112222", OptedOut: true}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeOptedOut, result.Outcome)
	assert.Zero(t, gate.calls)
	messenger.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_ComplianceDenialBlocks(t *testing.T) {
	messenger := &mockMessenger{}
	gate := &staticGate{decision: &protocol.ComplianceDecision{CanProceed: false, Violations: []string{"quiet_hours"}, Message: "outside calling window"}}
	exec := sms.New(slog.Default(), gate, messenger, nil, newPool())

	result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{Content: "hi"},
		&models.Contact{ID: "c1", Phone: "+15551112222"}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeBlocked, result.Outcome)
	assert.True(t, result.Failed())
	assert.Equal(t, "outside calling window", result.Error)
	messenger.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_TemplateModes(t *testing.T) {
	tests := []struct {
		name string
		mode models.ContentMode
		kind protocol.TemplateKind
	}{
		{name: "template", mode: models.ContentModeTemplate, kind: protocol.TemplateKindSMS},
		{name: "ai template", mode: models.ContentModeAITemplate, kind: protocol.TemplateKindAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates := &mockTemplates{}
			templates.On("Render", mock.Anything, "t1", protocol.TemplateRef{ID: "tpl-1", Kind: tt.kind}, mock.Anything).
				Return("Hello {{firstName}}", nil)

			messenger := &mockMessenger{}
			messenger.On("SendSMS", mock.Anything, "t1", "+15551112222", "Hello Ada", "+15559999999").
				Return(&protocol.SendResult{ID: "SM2"}, nil)

			exec := sms.New(slog.Default(), nil, messenger, templates, newPool())

			result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{
				ContentMode: tt.mode,
				TemplateID:  "tpl-1",
				FromNumber:  "+15559999999",
			}, &models.Contact{ID: "c1", FirstName: "Ada", Phone: "+15551112222"}))
			require.NoError(t, err)

			assert.Equal(t, models.OutcomeSent, result.Outcome)
			templates.AssertExpectations(t)
			messenger.AssertExpectations(t)
		})
	}
}

func TestExecutor_ConfigurationErrors(t *testing.T) {
	exec := sms.New(slog.Default(), nil, &mockMessenger{}, nil, newPool())
	contact := &models.Contact{ID: "c1", Phone: "+15551112222"}

	_, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{ContentMode: models.ContentModeTemplate}, contact))
	assert.True(t, protocol.IsConfigError(err))

	_, err = exec.Execute(t.Context(), input(&models.SendSMSConfig{TemplateID: "tpl-1"}, contact))
	assert.True(t, protocol.IsConfigError(err), "no renderer configured")

	_, err = exec.Execute(t.Context(), input(&models.SendSMSConfig{ContentMode: models.ContentModeContent}, contact))
	assert.True(t, protocol.IsConfigError(err))
}

func TestExecutor_DispatchFailureIsRecoverable(t *testing.T) {
	messenger := &mockMessenger{}
	messenger.On("SendSMS", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("carrier unavailable"))

	exec := sms.New(slog.Default(), nil, messenger, nil, newPool())

	result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{Content: "hi"},
		&models.Contact{ID: "c1", Phone: "+15551112222"}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "send_failed", result.Reason)
	assert.Equal(t, "carrier unavailable", result.Error)
}

func TestExecutor_DailyCapExhausted(t *testing.T) {
	messenger := &mockMessenger{}
	messenger.On("SendSMS", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "+15550000001").
		Return(&protocol.SendResult{ID: "SM1"}, nil).Once()

	exec := sms.New(slog.Default(), nil, messenger, nil, newPool())
	contact := &models.Contact{ID: "c1", Phone: "+15551112222"}

	result, err := exec.Execute(t.Context(), input(&models.SendSMSConfig{Content: "first"}, contact))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSent, result.Outcome)

	result, err = exec.Execute(t.Context(), input(&models.SendSMSConfig{Content: "second"}, contact))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "numbers_capped", result.Reason)
	messenger.AssertExpectations(t)
}

func TestBookingLink(t *testing.T) {
	assert.Equal(t, "https://book.example.com/?contact=c1&journey=j1", sms.BookingLink("https://book.example.com/", "c1", "j1"))
	assert.Equal(t, "https://book.example.com/?contact=c1&journey=j1&ref=sms", sms.BookingLink("https://book.example.com/?ref=sms", "c1", "j1"))
}
