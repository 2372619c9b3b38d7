// Package persistence provides the storage abstraction for journeys, their
// contacts and node executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/journey/pkg/models"
)

// Persistence groups every repository the engine needs.
type Persistence interface {
	Journeys() JourneyRepository
	Nodes() NodeRepository
	JourneyContacts() JourneyContactRepository
	Executions() ExecutionRepository
	Contacts() ContactRepository
	Tenants() TenantRepository
	Campaigns() CampaignRepository
	Webhooks() WebhookRepository
	CallLogs() CallLogRepository
	Messages() MessageRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type JourneyRepository interface {
	List(ctx context.Context, tenantID string) ([]*models.Journey, error)
	GetByID(ctx context.Context, id string) (*models.Journey, error)
	Save(ctx context.Context, journey *models.Journey) error
	// Delete removes the journey and its nodes.
	Delete(ctx context.Context, id string) error
}

type NodeRepository interface {
	// ListByJourney returns nodes in creation order.
	ListByJourney(ctx context.Context, journeyID string) ([]*models.JourneyNode, error)
	GetByID(ctx context.Context, journeyID, nodeID string) (*models.JourneyNode, error)
	Save(ctx context.Context, node *models.JourneyNode) error
	Delete(ctx context.Context, journeyID, nodeID string) error
}

type JourneyContactRepository interface {
	GetByID(ctx context.Context, id string) (*models.JourneyContact, error)
	GetByJourneyAndContact(ctx context.Context, journeyID, contactID string) (*models.JourneyContact, error)
	ListByJourney(ctx context.Context, journeyID string, status models.JourneyContactStatus) ([]*models.JourneyContact, error)
	Save(ctx context.Context, jc *models.JourneyContact) error
	// ActiveEnrollmentsByPhone finds ACTIVE memberships enrolled since the
	// given time whose contact has phone, in journeys other than excludeJourneyID.
	ActiveEnrollmentsByPhone(ctx context.Context, tenantID, phone string, since time.Time, excludeJourneyID string) ([]*models.JourneyContact, error)
}

// DueQuery selects PENDING executions whose scheduled time has passed,
// ordered by (ScheduledAt, ID). Types restricts to those node types,
// ExcludeTypes removes them. After pages past rows already returned.
type DueQuery struct {
	Now          time.Time
	Types        []models.NodeType
	ExcludeTypes []models.NodeType
	After        *DueCursor
	Limit        int
}

// DueCursor is the position of the last row of a Due page.
type DueCursor struct {
	ScheduledAt time.Time
	ID          string
}

// Past reports whether an execution sorts strictly after the cursor.
func (c *DueCursor) Past(scheduledAt time.Time, id string) bool {
	if c == nil {
		return true
	}

	switch scheduledAt.Compare(c.ScheduledAt) {
	case 1:
		return true
	case 0:
		return id > c.ID
	default:
		return false
	}
}

type ExecutionRepository interface {
	// CreatePending inserts exec unless a PENDING or EXECUTING execution
	// already exists for the same node and journey contact, in which case the
	// existing one is returned with created=false. The check and the insert
	// are atomic.
	CreatePending(ctx context.Context, exec *models.JourneyNodeExecution) (*models.JourneyNodeExecution, bool, error)
	GetByID(ctx context.Context, id string) (*models.JourneyNodeExecution, error)
	Save(ctx context.Context, exec *models.JourneyNodeExecution) error
	// Transition moves an execution from one status to another only if it is
	// still in from. It reports whether the row changed.
	Transition(ctx context.Context, exec *models.JourneyNodeExecution, from models.ExecutionStatus) (bool, error)
	Due(ctx context.Context, q DueQuery) ([]*models.JourneyNodeExecution, error)
	ListByJourneyContact(ctx context.Context, journeyContactID string) ([]*models.JourneyNodeExecution, error)
	// ExecutedSince returns executions of nodeID for the journey contact whose
	// ExecutedAt is at or after since.
	ExecutedSince(ctx context.Context, journeyContactID, nodeID string, since time.Time) ([]*models.JourneyNodeExecution, error)
	// LatestCompletedByType returns the most recently completed execution of a node type, or nil.
	LatestCompletedByType(ctx context.Context, journeyContactID string, nodeType models.NodeType) (*models.JourneyNodeExecution, error)
	FindAwaitingCall(ctx context.Context, correlationID string) (*models.JourneyNodeExecution, error)
	// FindAwaitingCallByPhone returns the most recent suspended call to phone executed since the given time.
	// Suspended calls store their phone normalized, so callers pass removal.NormalizePhone output.
	FindAwaitingCallByPhone(ctx context.Context, phone string, since time.Time) (*models.JourneyNodeExecution, error)
	ListStaleAwaitingCall(ctx context.Context, executedBefore time.Time, limit int) ([]*models.JourneyNodeExecution, error)
	// BulkReschedule moves PENDING executions to new times and returns how many moved.
	BulkReschedule(ctx context.Context, times map[string]time.Time) (int, error)
	// CancelPending marks every PENDING execution of the journey contact SKIPPED.
	CancelPending(ctx context.Context, journeyContactID, reason string, at time.Time) (int, error)
}

type ContactRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Contact, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error)
	Save(ctx context.Context, contact *models.Contact) error
	// MergeAttributes sets the given attributes, keeping the others.
	MergeAttributes(ctx context.Context, tenantID, id string, attributes map[string]any) error
}

type TenantRepository interface {
	Settings(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	SaveSettings(ctx context.Context, settings *models.TenantSettings) error
}

type CampaignRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	// AddMember and RemoveMember are idempotent.
	AddMember(ctx context.Context, campaignID, contactID string) error
	RemoveMember(ctx context.Context, campaignID, contactID string) error
	IsMember(ctx context.Context, campaignID, contactID string) (bool, error)
}

type WebhookRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.WebhookDefinition, error)
	Save(ctx context.Context, webhook *models.WebhookDefinition) error
}

type CallLogRepository interface {
	Save(ctx context.Context, log *models.CallLog) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.CallLog, error)
	// LatestForPhone returns the most recent call to phone, or nil.
	LatestForPhone(ctx context.Context, tenantID, phone string) (*models.CallLog, error)
}

// MessageQuery narrows an inbound message lookup. Empty fields do not filter.
type MessageQuery struct {
	TenantID   string
	ContactID  string
	Since      time.Time
	JourneyID  string
	CampaignID string
}

type MessageRepository interface {
	Save(ctx context.Context, msg *models.InboundMessage) error
	HasInbound(ctx context.Context, q MessageQuery) (bool, error)
}
