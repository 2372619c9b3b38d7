package models

// NodeConfig is implemented by exactly one config struct per node kind.
type NodeConfig interface {
	isNodeConfig()
}

// ContentMode selects how SEND_SMS produces its message body.
type ContentMode string

const (
	ContentModeTemplate   ContentMode = "template"
	ContentModeAITemplate ContentMode = "ai_template"
	ContentModeContent    ContentMode = "content"
)

// SendSMSConfig configures a SEND_SMS node.
type SendSMSConfig struct {
	ContentMode        ContentMode `json:"content_mode,omitempty"         validate:"omitempty,oneof=template ai_template content"`
	TemplateID         string      `json:"template_id,omitempty"`
	Content            string      `json:"content,omitempty"`
	IncludeBookingLink bool        `json:"include_booking_link,omitempty"`
	FromNumber         string      `json:"from_number,omitempty"`
}

// Mode returns the configured content mode, inferring it when unset.
func (c *SendSMSConfig) Mode() ContentMode {
	if c.ContentMode != "" {
		return c.ContentMode
	}

	if c.TemplateID != "" {
		return ContentModeTemplate
	}

	return ContentModeContent
}

// VoiceConfig is passed through to the TTS collaborator.
type VoiceConfig struct {
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// MakeCallConfig configures a MAKE_CALL node. Audio sources are tried in order:
// AudioURL, then VoiceTemplateID, then AudioFile.
type MakeCallConfig struct {
	AudioURL        string      `json:"audio_url,omitempty"`
	VoiceTemplateID string      `json:"voice_template_id,omitempty"`
	Voice           VoiceConfig `json:"voice"`
	AudioFile       string      `json:"audio_file,omitempty"`
	TransferNumber  string      `json:"transfer_number,omitempty"`
	FromNumber      string      `json:"from_number,omitempty"`
}

// CampaignConfig configures ADD_TO_CAMPAIGN and REMOVE_FROM_CAMPAIGN nodes.
type CampaignConfig struct {
	CampaignID string `json:"campaign_id" validate:"required"`
}

// WebhookConfig configures an EXECUTE_WEBHOOK node. Either WebhookID or URL is set.
type WebhookConfig struct {
	WebhookID       string            `json:"webhook_id,omitempty"`
	URL             string            `json:"url,omitempty"              validate:"required_without=WebhookID"`
	Method          string            `json:"method,omitempty"           validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"  validate:"gte=0,lte=120"`
	MaxRetries      *int              `json:"max_retries,omitempty"      validate:"omitempty,gte=0,lte=10"`
	ResponseMapping map[string]string `json:"response_mapping,omitempty"`
	ErrorField      string            `json:"error_field,omitempty"`
}

// DelayUnit is the unit of a relative TIME_DELAY.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "MINUTES"
	DelayUnitHours   DelayUnit = "HOURS"
	DelayUnitDays    DelayUnit = "DAYS"
)

// TimeDelayConfig configures a TIME_DELAY node. DelayAtTime (HH:mm) wins over
// the relative DelayValue/DelayUnit pair.
type TimeDelayConfig struct {
	DelayValue  int       `json:"delay_value"             validate:"gte=0"`
	DelayUnit   DelayUnit `json:"delay_unit,omitempty"    validate:"omitempty,oneof=MINUTES HOURS DAYS"`
	DelayAtTime string    `json:"delay_at_time,omitempty" validate:"omitempty,datetime=15:04"`
}

// ConditionConfig configures a CONDITION node. Branches live in the node's connections.
type ConditionConfig struct{}

// WeightedPathConfig configures a WEIGHTED_PATH node. Paths live in the node's connections.
type WeightedPathConfig struct{}

// UpdateContactStatusConfig configures an UPDATE_CONTACT_STATUS node.
type UpdateContactStatusConfig struct {
	Status     string `json:"status"                validate:"required"`
	EndJourney bool   `json:"end_journey,omitempty"`
}

func (*SendSMSConfig) isNodeConfig()             {}
func (*MakeCallConfig) isNodeConfig()            {}
func (*CampaignConfig) isNodeConfig()            {}
func (*WebhookConfig) isNodeConfig()             {}
func (*TimeDelayConfig) isNodeConfig()           {}
func (*ConditionConfig) isNodeConfig()           {}
func (*WeightedPathConfig) isNodeConfig()        {}
func (*UpdateContactStatusConfig) isNodeConfig() {}
