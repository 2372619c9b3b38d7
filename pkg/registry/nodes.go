package registry

import (
	"log/slog"
	"net/http"

	"github.com/dukex/journey/pkg/nodes/call"
	"github.com/dukex/journey/pkg/nodes/campaign"
	"github.com/dukex/journey/pkg/nodes/condition"
	"github.com/dukex/journey/pkg/nodes/contactstatus"
	"github.com/dukex/journey/pkg/nodes/delay"
	"github.com/dukex/journey/pkg/nodes/sms"
	"github.com/dukex/journey/pkg/nodes/webhook"
	"github.com/dukex/journey/pkg/nodes/weightedpath"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
)

// Dependencies are the collaborators the built-in executors need.
type Dependencies struct {
	Persistence persistence.Persistence
	Compliance  protocol.ComplianceGate
	Messenger   protocol.Messenger
	Telephony   protocol.Telephony
	Templates   protocol.TemplateRenderer
	Audio       call.AudioResolver
	NumberPool  sms.NumberPool
	HTTPClient  *http.Client
	Webhook     webhook.Options
	Call        call.Options
}

// RegisterDefaultNodes registers an executor for every node type. Without
// Persistence the executors can only describe and validate their configs.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	logger := r.logger

	var (
		callLogs  persistence.CallLogRepository
		campaigns persistence.CampaignRepository
		webhooks  persistence.WebhookRepository
		contacts  persistence.ContactRepository
	)

	if store := deps.Persistence; store != nil {
		callLogs = store.CallLogs()
		campaigns = store.Campaigns()
		webhooks = store.Webhooks()
		contacts = store.Contacts()
	}

	r.Register(sms.New(logger.With("node", "sms"), deps.Compliance, deps.Messenger, deps.Templates, deps.NumberPool))
	r.Register(call.New(logger.With("node", "call"), callLogs, deps.Audio, deps.Compliance, deps.Telephony, deps.Call))
	r.Register(campaign.NewAdd(logger.With("node", "campaign"), campaigns))
	r.Register(campaign.NewRemove(logger.With("node", "campaign"), campaigns))
	r.Register(webhook.New(logger.With("node", "webhook"), webhooks, contacts, deps.HTTPClient, deps.Webhook))
	r.Register(delay.New())
	r.Register(condition.New())
	r.Register(weightedpath.New())
	r.Register(contactstatus.New(logger.With("node", "contact_status"), contacts))
}

// NewDefault builds a registry with every built-in executor.
func NewDefault(logger *slog.Logger, deps Dependencies) *Registry {
	r := NewRegistry(logger)
	r.RegisterDefaultNodes(deps)

	return r
}

// NewSchemas builds a registry used only to validate node configs.
func NewSchemas(logger *slog.Logger) *Registry {
	return NewDefault(logger, Dependencies{})
}
