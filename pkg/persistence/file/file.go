// Package file provides a file-backed persistence implementation, one JSON
// document per record. It serializes all access through one lock, which
// makes it suitable for development, tests and single-process deployments.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type campaignMember struct {
	CampaignID string `json:"campaign_id"`
	ContactID  string `json:"contact_id"`
}

// Persistence implements persistence.Persistence using the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex

	journeys        collection[models.Journey]
	nodes           collection[models.JourneyNode]
	journeyContacts collection[models.JourneyContact]
	executions      collection[models.JourneyNodeExecution]
	contacts        collection[models.Contact]
	tenants         collection[models.TenantSettings]
	campaigns       collection[models.Campaign]
	members         collection[campaignMember]
	webhooks        collection[models.WebhookDefinition]
	callLogs        collection[models.CallLog]
	messages        collection[models.InboundMessage]
}

// NewPersistence creates a file store rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		journeys:        newCollection[models.Journey](cleanRoot, "journeys"),
		nodes:           newCollection[models.JourneyNode](cleanRoot, "nodes"),
		journeyContacts: newCollection[models.JourneyContact](cleanRoot, "journey_contacts"),
		executions:      newCollection[models.JourneyNodeExecution](cleanRoot, "executions"),
		contacts:        newCollection[models.Contact](cleanRoot, "contacts"),
		tenants:         newCollection[models.TenantSettings](cleanRoot, "tenants"),
		campaigns:       newCollection[models.Campaign](cleanRoot, "campaigns"),
		members:         newCollection[campaignMember](cleanRoot, "campaign_members"),
		webhooks:        newCollection[models.WebhookDefinition](cleanRoot, "webhooks"),
		callLogs:        newCollection[models.CallLog](cleanRoot, "call_logs"),
		messages:        newCollection[models.InboundMessage](cleanRoot, "messages"),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Journeys() persistence.JourneyRepository { return &journeyRepository{p} }

func (p *Persistence) Nodes() persistence.NodeRepository { return &nodeRepository{p} }

func (p *Persistence) JourneyContacts() persistence.JourneyContactRepository {
	return &journeyContactRepository{p}
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return &executionRepository{p} }

func (p *Persistence) Contacts() persistence.ContactRepository { return &contactRepository{p} }

func (p *Persistence) Tenants() persistence.TenantRepository { return &tenantRepository{p} }

func (p *Persistence) Campaigns() persistence.CampaignRepository { return &campaignRepository{p} }

func (p *Persistence) Webhooks() persistence.WebhookRepository { return &webhookRepository{p} }

func (p *Persistence) CallLogs() persistence.CallLogRepository { return &callLogRepository{p} }

func (p *Persistence) Messages() persistence.MessageRepository { return &messageRepository{p} }
