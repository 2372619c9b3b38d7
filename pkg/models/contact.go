package models

import "time"

// Contact is the subset of the contact store the engine reads and writes.
type Contact struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Phone      string         `json:"phone"`
	Email      string         `json:"email"`
	OptedOut   bool           `json:"opted_out"`
	LeadStatus string         `json:"lead_status"`
	Timezone   string         `json:"timezone,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// FullName joins first and last name.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// CallLog records one outbound call placed by a MAKE_CALL node.
type CallLog struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	ContactID       string     `json:"contact_id"`
	ExecutionID     string     `json:"execution_id"`
	Phone           string     `json:"phone"`
	CorrelationID   string     `json:"correlation_id"`
	Status          string     `json:"status"`
	InFlight        bool       `json:"in_flight"`
	Transferred     bool       `json:"transferred"`
	DurationSeconds int        `json:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// InboundMessage is a message received from a contact.
type InboundMessage struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ContactID  string    `json:"contact_id"`
	JourneyID  string    `json:"journey_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Campaign is a named contact list that nodes can add to or remove from.
type Campaign struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookDefinition is a stored webhook referenced by EXECUTE_WEBHOOK nodes.
type WebhookDefinition struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
}
