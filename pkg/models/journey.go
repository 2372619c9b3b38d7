// Package models defines the core domain models for journey execution.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey.
type JourneyStatus string

const (
	JourneyStatusDraft    JourneyStatus = "DRAFT"    // Editable, not enrollable
	JourneyStatusActive   JourneyStatus = "ACTIVE"   // Launched, accepts enrollments
	JourneyStatusPaused   JourneyStatus = "PAUSED"   // Executions are deferred
	JourneyStatusArchived JourneyStatus = "ARCHIVED" // Terminal for enrollment
)

// ScheduleConstraints restricts when a journey's nodes may run.
// Days uses time.Weekday numbering (0 = Sunday). An empty list allows every day.
type ScheduleConstraints struct {
	Days      []int  `json:"days,omitempty"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time"   validate:"required,datetime=15:04"`
	Timezone  string `json:"timezone,omitempty"`
}

// RemovalConditionType names one kind of removal rule.
type RemovalConditionType string

const (
	RemovalCallTransferred   RemovalConditionType = "call_transferred"
	RemovalCallDuration      RemovalConditionType = "call_duration"
	RemovalCallStatus        RemovalConditionType = "call_status"
	RemovalWebhookPhoneMatch RemovalConditionType = "webhook_phone_match"
	RemovalCustom            RemovalConditionType = "custom"
)

// RemovalCondition is one ordered rule in a journey's removal criteria.
type RemovalCondition struct {
	Type       RemovalConditionType `json:"type"                  validate:"required,oneof=call_transferred call_duration call_status webhook_phone_match custom"`
	MinSeconds int                  `json:"min_seconds,omitempty"`
	Statuses   []string             `json:"statuses,omitempty"`
	PhoneField string               `json:"phone_field,omitempty"`
	Field      string               `json:"field,omitempty"`
	Operator   string               `json:"operator,omitempty"`
	Value      any                  `json:"value,omitempty"`
}

// RemovalCriteria ends a contact's membership early when any condition matches.
type RemovalCriteria struct {
	Conditions   []RemovalCondition `json:"conditions,omitempty" validate:"dive"`
	WebhookToken string             `json:"webhook_token,omitempty"`
}

// Journey is a named, multi-step contact workflow definition.
type Journey struct {
	ID              string               `json:"id"`
	TenantID        string               `json:"tenant_id"                  validate:"required"`
	Name            string               `json:"name"                       validate:"required,min=3"`
	Description     string               `json:"description"`
	Status          JourneyStatus        `json:"status"`
	Schedule        *ScheduleConstraints `json:"schedule,omitempty"`
	EntryCriteria   map[string]any       `json:"entry_criteria,omitempty"`
	RemovalCriteria RemovalCriteria      `json:"removal_criteria"`
	AutoEnroll      bool                 `json:"auto_enroll"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	PausedAt        *time.Time           `json:"paused_at,omitempty"`
	ArchivedAt      *time.Time           `json:"archived_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// AcceptsEnrollment reports whether new contacts may be enrolled.
func (j *Journey) AcceptsEnrollment() bool {
	return j.Status == JourneyStatusActive
}
