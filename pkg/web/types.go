// Package web provides HTTP request and response types for the journey API.
package web

import (
	"encoding/json"

	"github.com/dukex/journey/pkg/models"
)

// TenantHeader carries the caller's tenant on every journey route.
const TenantHeader = "X-Tenant-ID"

// WebhookTokenHeader authenticates removal webhooks.
const WebhookTokenHeader = "X-Webhook-Token"

// CreateJourneyRequest represents the request body for creating a new journey.
type CreateJourneyRequest struct {
	Name            string                      `json:"name"                       validate:"required,min=3"`
	Description     string                      `json:"description"`
	Schedule        *models.ScheduleConstraints `json:"schedule,omitempty"`
	EntryCriteria   map[string]any              `json:"entry_criteria,omitempty"`
	RemovalCriteria models.RemovalCriteria      `json:"removal_criteria"`
	AutoEnroll      bool                        `json:"auto_enroll"`
}

// UpdateJourneyRequest represents the request body for updating a journey.
// All fields are optional to support partial updates.
type UpdateJourneyRequest struct {
	Name            *string                     `json:"name,omitempty"             validate:"omitempty,min=3"`
	Description     *string                     `json:"description,omitempty"`
	Schedule        *models.ScheduleConstraints `json:"schedule,omitempty"`
	RemovalCriteria *models.RemovalCriteria     `json:"removal_criteria,omitempty"`
	AutoEnroll      *bool                       `json:"auto_enroll,omitempty"`
}

// CreateNodeRequest represents the request body for adding a node to a journey.
type CreateNodeRequest struct {
	Type        models.NodeType    `json:"type"        validate:"required"`
	Name        string             `json:"name"        validate:"required,min=1"`
	Config      json.RawMessage    `json:"config"`
	Connections models.Connections `json:"connections"`
}

// UpdateNodeRequest represents the request body for updating a node.
// The type cannot be changed.
type UpdateNodeRequest struct {
	Name        string             `json:"name"        validate:"required,min=1"`
	Config      json.RawMessage    `json:"config"`
	Connections models.Connections `json:"connections"`
}

// EnrollRequest represents the request body for enrolling a contact.
type EnrollRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
}

// CallStatusRequest is the telephony provider's end-of-call report.
type CallStatusRequest struct {
	CorrelationID   string `json:"correlation_id"             validate:"required_without=Phone"`
	Phone           string `json:"phone,omitempty"`
	Status          string `json:"status"                     validate:"required"`
	Disposition     string `json:"disposition,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty" validate:"gte=0"`
	Transferred     bool   `json:"transferred,omitempty"`
}

// RemovalWebhookRequest asks the engine to check a contact against the
// journey's removal criteria with an external payload.
type RemovalWebhookRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Payload   map[string]any `json:"payload"`
}

// RemovalWebhookResponse reports whether the contact was removed.
type RemovalWebhookResponse struct {
	Removed bool `json:"removed"`
}
