package models

// GateAction is what the execution rules gate asks the caller to do when it
// blocks an execution.
type GateAction string

const (
	GateActionReschedule   GateAction = "reschedule"
	GateActionSkip         GateAction = "skip"
	GateActionPause        GateAction = "pause"
	GateActionDefaultEvent GateAction = "default_event"
	GateActionContinue     GateAction = "continue"
)

// BusinessHoursRule is a tenant's after-hours handling.
type BusinessHoursRule struct {
	Enabled            bool       `json:"enabled"`
	StartTime          string     `json:"start_time"                      validate:"required_if=Enabled true"`
	EndTime            string     `json:"end_time"                        validate:"required_if=Enabled true"`
	Days               []int      `json:"days,omitempty"`
	Timezone           string     `json:"timezone,omitempty"`
	Action             GateAction `json:"action,omitempty"                validate:"omitempty,oneof=reschedule skip pause default_event"`
	DefaultEventNodeID string     `json:"default_event_node_id,omitempty"`
}

// ResubmissionRule detects the same lead entering several journeys.
type ResubmissionRule struct {
	Enabled                bool       `json:"enabled"`
	WindowMinutes          int        `json:"window_minutes"`
	Action                 GateAction `json:"action,omitempty"                   validate:"omitempty,oneof=reschedule skip pause default_event continue"`
	RescheduleDelayMinutes int        `json:"reschedule_delay_minutes,omitempty"`
	DefaultEventNodeID     string     `json:"default_event_node_id,omitempty"`
}

// SendingNumber is one number in a tenant's SMS pool.
type SendingNumber struct {
	Number   string `json:"number"`
	DailyCap int    `json:"daily_cap"` // 0 means uncapped
}

// TenantSettings is the tenant configuration the engine consults.
type TenantSettings struct {
	TenantID        string            `json:"tenant_id"`
	Timezone        string            `json:"timezone,omitempty"`
	BusinessHours   BusinessHoursRule `json:"business_hours"`
	Resubmission    ResubmissionRule  `json:"resubmission"`
	LeadStatuses    []string          `json:"lead_statuses,omitempty"`
	SendingNumbers  []SendingNumber   `json:"sending_numbers,omitempty"`
	DefaultCallerID string            `json:"default_caller_id,omitempty"`
	BookingURL      string            `json:"booking_url,omitempty"`
}
