package protocol

import (
	"context"

	"github.com/dukex/journey/pkg/models"
)

// ActionType names the action a compliance check is asked about.
type ActionType string

const (
	ActionSMS  ActionType = "sms"
	ActionCall ActionType = "call"
)

// ComplianceDecision is the answer of a compliance gate.
type ComplianceDecision struct {
	CanProceed bool     `json:"can_proceed"`
	Violations []string `json:"violations,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// ComplianceGate decides whether an outbound action is allowed.
type ComplianceGate interface {
	CheckCompliance(ctx context.Context, tenantID string, contact *models.Contact, action ActionType, data map[string]any) (*ComplianceDecision, error)
}

// SendResult identifies a dispatched message.
type SendResult struct {
	ID   string `json:"id"`
	From string `json:"from,omitempty"`
}

// Messenger sends SMS messages.
type Messenger interface {
	SendSMS(ctx context.Context, tenantID, to, body, fromHint string) (*SendResult, error)
}

// CallRequest describes an outbound call.
type CallRequest struct {
	TenantID       string `json:"tenant_id"`
	To             string `json:"to"`
	From           string `json:"from,omitempty"`
	AudioRef       string `json:"audio_ref"`
	TransferNumber string `json:"transfer_number,omitempty"`
}

// CallResult identifies a placed call.
type CallResult struct {
	CorrelationID string `json:"correlation_id"`
}

// Telephony places calls. Completion arrives later through the call-completion router.
type Telephony interface {
	PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error)
}

// RenderedAudio is speech produced by a TTS collaborator.
type RenderedAudio struct {
	Data            []byte  `json:"data"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AudioRenderer turns text into speech.
type AudioRenderer interface {
	RenderAudio(ctx context.Context, text string, voice models.VoiceConfig) (*RenderedAudio, error)
}

// AudioStore persists rendered audio and returns a reference the telephony provider can fetch.
type AudioStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// TemplateKind distinguishes template families.
type TemplateKind string

const (
	TemplateKindSMS   TemplateKind = "sms"
	TemplateKindAI    TemplateKind = "ai"
	TemplateKindVoice TemplateKind = "voice"
)

// TemplateRef points at a stored template.
type TemplateRef struct {
	ID   string       `json:"id"`
	Kind TemplateKind `json:"kind"`
}

// TemplateRenderer renders stored templates.
type TemplateRenderer interface {
	Render(ctx context.Context, tenantID string, ref TemplateRef, variables map[string]any) (string, error)
}

// MessageScope narrows an inbound-message lookup.
type MessageScope struct {
	JourneyID  string
	CampaignID string
}

// ConversationContext answers read-only questions about a contact's recent activity.
type ConversationContext interface {
	HasInboundMessage(ctx context.Context, scope MessageScope) (bool, error)
	LastCallOutcome(ctx context.Context) (string, error)
}
