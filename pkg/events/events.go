// Package events defines the notifications published while contacts move through journeys.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic journey events are published to.
const Topic = "journey.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Membership lifecycle events.
	ContactEnrolledEvent  EventType = "journey.contact.enrolled"
	ContactCompletedEvent EventType = "journey.contact.completed"
	ContactPausedEvent    EventType = "journey.contact.paused"
	ContactResumedEvent   EventType = "journey.contact.resumed"
	ContactRemovedEvent   EventType = "journey.contact.removed"

	// Node execution events.
	ExecutionCompletedEvent EventType = "journey.execution.completed"
	ExecutionFailedEvent    EventType = "journey.execution.failed"

	// Outbound call completion, as reported by the telephony provider.
	CallStatusEvent EventType = "call.status"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	JourneyID string         `json:"journey_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ContactEvent reports a change in a contact's journey membership.
type ContactEvent struct {
	BaseEvent

	JourneyContactID string `json:"journey_contact_id"`
	ContactID        string `json:"contact_id"`
	NodeID           string `json:"node_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

func (e ContactEvent) GetType() EventType {
	return e.Type
}

// ExecutionEvent reports a node execution reaching a terminal state.
type ExecutionEvent struct {
	BaseEvent

	ExecutionID      string `json:"execution_id"`
	JourneyContactID string `json:"journey_contact_id"`
	NodeID           string `json:"node_id"`
	NodeType         string `json:"node_type"`
	Outcome          string `json:"outcome,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (e ExecutionEvent) GetType() EventType {
	return e.Type
}

// CallStatus is a telephony completion callback carried over the bus.
type CallStatus struct {
	BaseEvent

	CorrelationID   string `json:"correlation_id"`
	Phone           string `json:"phone,omitempty"`
	Status          string `json:"status"`
	Disposition     string `json:"disposition,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Transferred     bool   `json:"transferred,omitempty"`
}

func (e CallStatus) GetType() EventType {
	return CallStatusEvent
}

// NewBase stamps a fresh event header.
func NewBase(eventType EventType, tenantID, journeyID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		TenantID:  tenantID,
		JourneyID: journeyID,
	}
}
