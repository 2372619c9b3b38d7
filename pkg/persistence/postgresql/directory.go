package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// TenantRepository stores tenant settings as one JSON document per tenant.
type TenantRepository struct {
	repository
}

func (r *TenantRepository) Settings(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, `SELECT settings FROM tenant_settings WHERE tenant_id = $1`, tenantID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, persistence.ErrTenantNotFound)
		}

		return nil, fmt.Errorf("failed to query tenant settings: %w", err)
	}

	var settings models.TenantSettings

	err = unmarshalJSON(data, &settings)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant settings: %w", err)
	}

	settings.TenantID = tenantID

	return &settings, nil
}

func (r *TenantRepository) SaveSettings(ctx context.Context, settings *models.TenantSettings) error {
	data, err := objectJSON(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant settings: %w", err)
	}

	query := `
		INSERT INTO tenant_settings (tenant_id, settings, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, settings.TenantID, data)
	if err != nil {
		return fmt.Errorf("failed to save tenant settings: %w", err)
	}

	return nil
}

// CampaignRepository handles campaigns and their members.
type CampaignRepository struct {
	repository
}

func (r *CampaignRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	var campaign models.Campaign

	query := `SELECT id, tenant_id, name, created_at FROM campaigns WHERE id = $1 AND tenant_id = $2`

	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&campaign.ID,
		&campaign.TenantID,
		&campaign.Name,
		&campaign.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %s: %w", id, persistence.ErrCampaignNotFound)
		}

		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}

	return &campaign, nil
}

func (r *CampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, tenant_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`

	_, err := r.db.ExecContext(ctx, query, campaign.ID, campaign.TenantID, campaign.Name, campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save campaign %s: %w", campaign.ID, err)
	}

	return nil
}

func (r *CampaignRepository) AddMember(ctx context.Context, campaignID, contactID string) error {
	query := `
		INSERT INTO campaign_members (campaign_id, contact_id)
		VALUES ($1, $2)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, campaignID, contactID)
	if err != nil {
		return fmt.Errorf("failed to add campaign member: %w", err)
	}

	return nil
}

func (r *CampaignRepository) RemoveMember(ctx context.Context, campaignID, contactID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM campaign_members WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID)
	if err != nil {
		return fmt.Errorf("failed to remove campaign member: %w", err)
	}

	return nil
}

func (r *CampaignRepository) IsMember(ctx context.Context, campaignID, contactID string) (bool, error) {
	var member bool

	query := `SELECT EXISTS (SELECT 1 FROM campaign_members WHERE campaign_id = $1 AND contact_id = $2)`

	err := r.db.QueryRowContext(ctx, query, campaignID, contactID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check campaign member: %w", err)
	}

	return member, nil
}

// WebhookRepository handles stored webhook definitions.
type WebhookRepository struct {
	repository
}

func (r *WebhookRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WebhookDefinition, error) {
	var (
		webhook models.WebhookDefinition
		headers []byte
	)

	query := `SELECT id, tenant_id, name, url, method, headers, body FROM webhooks WHERE id = $1 AND tenant_id = $2`

	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&webhook.ID,
		&webhook.TenantID,
		&webhook.Name,
		&webhook.URL,
		&webhook.Method,
		&headers,
		&webhook.Body,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("webhook %s: %w", id, persistence.ErrWebhookNotFound)
		}

		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}

	err = unmarshalJSON(headers, &webhook.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook headers: %w", err)
	}

	return &webhook, nil
}

func (r *WebhookRepository) Save(ctx context.Context, webhook *models.WebhookDefinition) error {
	headers, err := nullableJSON(webhook.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook headers: %w", err)
	}

	query := `
		INSERT INTO webhooks (id, tenant_id, name, url, method, headers, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			method = EXCLUDED.method,
			headers = EXCLUDED.headers,
			body = EXCLUDED.body
	`

	_, err = r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.TenantID,
		webhook.Name,
		webhook.URL,
		webhook.Method,
		headers,
		webhook.Body,
	)
	if err != nil {
		return fmt.Errorf("failed to save webhook %s: %w", webhook.ID, err)
	}

	return nil
}

// CallLogRepository handles call_logs rows.
type CallLogRepository struct {
	repository
}

const callLogColumns = `
			id
		  , tenant_id
		  , contact_id
		  , execution_id
		  , phone
		  , correlation_id
		  , status
		  , in_flight
		  , transferred
		  , duration_seconds
		  , started_at
		  , ended_at`

func (r *CallLogRepository) Save(ctx context.Context, log *models.CallLog) error {
	query := `
		INSERT INTO call_logs (id, tenant_id, contact_id, execution_id, phone, correlation_id, status,
			in_flight, transferred, duration_seconds, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			correlation_id = EXCLUDED.correlation_id,
			status = EXCLUDED.status,
			in_flight = EXCLUDED.in_flight,
			transferred = EXCLUDED.transferred,
			duration_seconds = EXCLUDED.duration_seconds,
			ended_at = EXCLUDED.ended_at
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.ContactID,
		log.ExecutionID,
		log.Phone,
		log.CorrelationID,
		log.Status,
		log.InFlight,
		log.Transferred,
		log.DurationSeconds,
		log.StartedAt,
		log.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save call log %s: %w", log.ID, err)
	}

	return nil
}

func (r *CallLogRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.CallLog, error) {
	query := `SELECT ` + callLogColumns + ` FROM call_logs WHERE correlation_id = $1 ORDER BY started_at DESC LIMIT 1`

	log, err := scanCallLog(r.db.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", correlationID, persistence.ErrCallLogNotFound)
		}

		return nil, fmt.Errorf("failed to scan call log: %w", err)
	}

	return log, nil
}

func (r *CallLogRepository) LatestForPhone(ctx context.Context, tenantID, phone string) (*models.CallLog, error) {
	query := `SELECT ` + callLogColumns + `
		FROM call_logs
		WHERE tenant_id = $1 AND phone = $2
		ORDER BY started_at DESC
		LIMIT 1
	`

	log, err := scanCallLog(r.db.QueryRowContext(ctx, query, tenantID, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan call log: %w", err)
	}

	return log, nil
}

func scanCallLog(row scanner) (*models.CallLog, error) {
	var log models.CallLog

	err := row.Scan(
		&log.ID,
		&log.TenantID,
		&log.ContactID,
		&log.ExecutionID,
		&log.Phone,
		&log.CorrelationID,
		&log.Status,
		&log.InFlight,
		&log.Transferred,
		&log.DurationSeconds,
		&log.StartedAt,
		&log.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	return &log, nil
}

// MessageRepository handles inbound_messages rows.
type MessageRepository struct {
	repository
}

func (r *MessageRepository) Save(ctx context.Context, msg *models.InboundMessage) error {
	query := `
		INSERT INTO inbound_messages (id, tenant_id, contact_id, journey_id, campaign_id, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.TenantID,
		msg.ContactID,
		msg.JourneyID,
		msg.CampaignID,
		msg.Body,
		msg.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save inbound message %s: %w", msg.ID, err)
	}

	return nil
}

func (r *MessageRepository) HasInbound(ctx context.Context, q persistence.MessageQuery) (bool, error) {
	var found bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM inbound_messages
			WHERE ($1 = '' OR tenant_id = $1)
			  AND ($2 = '' OR contact_id = $2)
			  AND ($3 = '' OR journey_id = $3)
			  AND ($4 = '' OR campaign_id = $4)
			  AND received_at >= $5
		)
	`

	err := r.db.QueryRowContext(ctx, query, q.TenantID, q.ContactID, q.JourneyID, q.CampaignID, q.Since).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check inbound messages: %w", err)
	}

	return found, nil
}
