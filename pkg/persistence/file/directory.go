package file

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type tenantRepository struct {
	p *Persistence
}

func (r *tenantRepository) Settings(_ context.Context, tenantID string) (*models.TenantSettings, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	s, err := r.p.tenants.get(tenantID)
	if err != nil {
		return nil, err
	}

	if s == nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, persistence.ErrTenantNotFound)
	}

	return s, nil
}

func (r *tenantRepository) SaveSettings(_ context.Context, settings *models.TenantSettings) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.tenants.put(settings.TenantID, settings)
}

type campaignRepository struct {
	p *Persistence
}

func (r *campaignRepository) GetByID(_ context.Context, tenantID, id string) (*models.Campaign, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	c, err := r.p.campaigns.get(id)
	if err != nil {
		return nil, err
	}

	if c == nil || c.TenantID != tenantID {
		return nil, fmt.Errorf("campaign %s: %w", id, persistence.ErrCampaignNotFound)
	}

	return c, nil
}

func (r *campaignRepository) Save(_ context.Context, campaign *models.Campaign) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.campaigns.put(campaign.ID, campaign)
}

func (r *campaignRepository) AddMember(_ context.Context, campaignID, contactID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.members.put(key(campaignID, contactID), &campaignMember{CampaignID: campaignID, ContactID: contactID})
}

func (r *campaignRepository) RemoveMember(_ context.Context, campaignID, contactID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	_, err := r.p.members.delete(key(campaignID, contactID))

	return err
}

func (r *campaignRepository) IsMember(_ context.Context, campaignID, contactID string) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	m, err := r.p.members.get(key(campaignID, contactID))

	return m != nil, err
}

type webhookRepository struct {
	p *Persistence
}

func (r *webhookRepository) GetByID(_ context.Context, tenantID, id string) (*models.WebhookDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	w, err := r.p.webhooks.get(id)
	if err != nil {
		return nil, err
	}

	if w == nil || w.TenantID != tenantID {
		return nil, fmt.Errorf("webhook %s: %w", id, persistence.ErrWebhookNotFound)
	}

	return w, nil
}

func (r *webhookRepository) Save(_ context.Context, webhook *models.WebhookDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.webhooks.put(webhook.ID, webhook)
}

type callLogRepository struct {
	p *Persistence
}

func (r *callLogRepository) Save(_ context.Context, log *models.CallLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.callLogs.put(log.ID, log)
}

func (r *callLogRepository) GetByCorrelationID(_ context.Context, correlationID string) (*models.CallLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.callLogs.matching(func(l *models.CallLog) bool { return l.CorrelationID == correlationID })
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("call %s: %w", correlationID, persistence.ErrCallLogNotFound)
	}

	return found[0], nil
}

func (r *callLogRepository) LatestForPhone(_ context.Context, tenantID, phone string) (*models.CallLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.callLogs.matching(func(l *models.CallLog) bool {
		return l.TenantID == tenantID && l.Phone == phone
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}

	return slices.MaxFunc(found, func(a, b *models.CallLog) int {
		return a.StartedAt.Compare(b.StartedAt)
	}), nil
}

type messageRepository struct {
	p *Persistence
}

func (r *messageRepository) Save(_ context.Context, msg *models.InboundMessage) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.messages.put(msg.ID, msg)
}

func (r *messageRepository) HasInbound(_ context.Context, q persistence.MessageQuery) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.messages.matching(func(m *models.InboundMessage) bool {
		return (q.TenantID == "" || m.TenantID == q.TenantID) &&
			(q.ContactID == "" || m.ContactID == q.ContactID) &&
			(q.JourneyID == "" || m.JourneyID == q.JourneyID) &&
			(q.CampaignID == "" || m.CampaignID == q.CampaignID) &&
			!m.ReceivedAt.Before(q.Since)
	})

	return len(found) > 0, err
}
