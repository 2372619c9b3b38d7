package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// JourneyContactRepository handles journey_contacts rows.
type JourneyContactRepository struct {
	repository
}

const journeyContactColumns = `
			jc.id
		  , jc.journey_id
		  , jc.tenant_id
		  , jc.contact_id
		  , jc.status
		  , jc.current_node_id
		  , jc.source
		  , jc.enrollment_data
		  , jc.status_reason
		  , jc.enrolled_at
		  , jc.paused_at
		  , jc.completed_at
		  , jc.removed_at
		  , jc.created_at
		  , jc.updated_at
		  , jc.enrollment`

func (r *JourneyContactRepository) GetByID(ctx context.Context, id string) (*models.JourneyContact, error) {
	query := `SELECT ` + journeyContactColumns + ` FROM journey_contacts jc WHERE jc.id = $1`

	jc, err := scanJourneyContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("journey contact %s: %w", id, persistence.ErrJourneyContactNotFound)
		}

		return nil, fmt.Errorf("failed to scan journey contact: %w", err)
	}

	return jc, nil
}

func (r *JourneyContactRepository) GetByJourneyAndContact(ctx context.Context, journeyID, contactID string) (*models.JourneyContact, error) {
	query := `SELECT ` + journeyContactColumns + `
		FROM journey_contacts jc
		WHERE jc.journey_id = $1 AND jc.contact_id = $2
	`

	jc, err := scanJourneyContact(r.db.QueryRowContext(ctx, query, journeyID, contactID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s in journey %s: %w", contactID, journeyID, persistence.ErrJourneyContactNotFound)
		}

		return nil, fmt.Errorf("failed to scan journey contact: %w", err)
	}

	return jc, nil
}

func (r *JourneyContactRepository) ListByJourney(ctx context.Context, journeyID string, status models.JourneyContactStatus) ([]*models.JourneyContact, error) {
	query := `SELECT ` + journeyContactColumns + `
		FROM journey_contacts jc
		WHERE jc.journey_id = $1 AND ($2 = '' OR jc.status = $2)
		ORDER BY jc.enrolled_at
	`

	return r.list(ctx, query, journeyID, string(status))
}

func (r *JourneyContactRepository) ActiveEnrollmentsByPhone(ctx context.Context, tenantID, phone string, since time.Time, excludeJourneyID string) ([]*models.JourneyContact, error) {
	query := `SELECT ` + journeyContactColumns + `
		FROM journey_contacts jc
		JOIN contacts c ON c.id = jc.contact_id
		WHERE jc.tenant_id = $1
		  AND c.tenant_id = $1
		  AND c.phone = $2
		  AND jc.status = 'ACTIVE'
		  AND jc.enrolled_at >= $3
		  AND jc.journey_id <> $4
		ORDER BY jc.enrolled_at
	`

	return r.list(ctx, query, tenantID, phone, since, excludeJourneyID)
}

func (r *JourneyContactRepository) list(ctx context.Context, query string, args ...any) ([]*models.JourneyContact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey contacts: %w", err)
	}

	defer r.closeRows(ctx, rows)

	found := make([]*models.JourneyContact, 0)

	for rows.Next() {
		jc, err := scanJourneyContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey contact: %w", err)
		}

		found = append(found, jc)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journey contacts: %w", err)
	}

	return found, nil
}

func (r *JourneyContactRepository) Save(ctx context.Context, jc *models.JourneyContact) error {
	enrollment, err := nullableJSON(jc.EnrollmentData)
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment data: %w", err)
	}

	query := `
		INSERT INTO journey_contacts (id, journey_id, tenant_id, contact_id, status, current_node_id, source,
			enrollment_data, status_reason, enrolled_at, paused_at, completed_at, removed_at, created_at, updated_at,
			enrollment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			source = EXCLUDED.source,
			enrollment_data = EXCLUDED.enrollment_data,
			status_reason = EXCLUDED.status_reason,
			enrolled_at = EXCLUDED.enrolled_at,
			paused_at = EXCLUDED.paused_at,
			completed_at = EXCLUDED.completed_at,
			removed_at = EXCLUDED.removed_at,
			updated_at = EXCLUDED.updated_at,
			enrollment = EXCLUDED.enrollment
	`

	_, err = r.db.ExecContext(ctx, query,
		jc.ID,
		jc.JourneyID,
		jc.TenantID,
		jc.ContactID,
		jc.Status,
		jc.CurrentNodeID,
		jc.Source,
		enrollment,
		jc.StatusReason,
		jc.EnrolledAt,
		jc.PausedAt,
		jc.CompletedAt,
		jc.RemovedAt,
		jc.CreatedAt,
		jc.UpdatedAt,
		jc.Enrollment,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey contact %s: %w", jc.ID, err)
	}

	return nil
}

func scanJourneyContact(row scanner) (*models.JourneyContact, error) {
	var (
		jc         models.JourneyContact
		enrollment []byte
	)

	err := row.Scan(
		&jc.ID,
		&jc.JourneyID,
		&jc.TenantID,
		&jc.ContactID,
		&jc.Status,
		&jc.CurrentNodeID,
		&jc.Source,
		&enrollment,
		&jc.StatusReason,
		&jc.EnrolledAt,
		&jc.PausedAt,
		&jc.CompletedAt,
		&jc.RemovedAt,
		&jc.CreatedAt,
		&jc.UpdatedAt,
		&jc.Enrollment,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(enrollment, &jc.EnrollmentData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal enrollment data: %w", err)
	}

	return &jc, nil
}

// ContactRepository handles contact rows.
type ContactRepository struct {
	repository
}

const contactColumns = `
			id
		  , tenant_id
		  , first_name
		  , last_name
		  , phone
		  , email
		  , opted_out
		  , lead_status
		  , timezone
		  , attributes
		  , created_at
		  , updated_at`

// GetByID loads a contact. An empty tenantID matches any tenant.
func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND ($2 = '' OR tenant_id = $2)`

	contact, err := scanContact(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, persistence.ErrContactNotFound)
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (r *ContactRepository) GetByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + `
		FROM contacts
		WHERE tenant_id = $1 AND phone = $2
		ORDER BY created_at
		LIMIT 1
	`

	contact, err := scanContact(r.db.QueryRowContext(ctx, query, tenantID, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact with phone %s: %w", phone, persistence.ErrContactNotFound)
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (r *ContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	attributes, err := objectJSON(contact.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal contact attributes: %w", err)
	}

	query := `
		INSERT INTO contacts (id, tenant_id, first_name, last_name, phone, email, opted_out,
			lead_status, timezone, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			opted_out = EXCLUDED.opted_out,
			lead_status = EXCLUDED.lead_status,
			timezone = EXCLUDED.timezone,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		contact.ID,
		contact.TenantID,
		contact.FirstName,
		contact.LastName,
		contact.Phone,
		contact.Email,
		contact.OptedOut,
		contact.LeadStatus,
		contact.Timezone,
		attributes,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", contact.ID, err)
	}

	return nil
}

func (r *ContactRepository) MergeAttributes(ctx context.Context, tenantID, id string, attributes map[string]any) error {
	patch, err := objectJSON(attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal contact attributes: %w", err)
	}

	query := `
		UPDATE contacts
		SET attributes = attributes || $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND ($2 = '' OR tenant_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, id, tenantID, patch)
	if err != nil {
		return fmt.Errorf("failed to merge contact attributes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("contact %s: %w", id, persistence.ErrContactNotFound)
	}

	return nil
}

func scanContact(row scanner) (*models.Contact, error) {
	var (
		contact    models.Contact
		attributes []byte
	)

	err := row.Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Phone,
		&contact.Email,
		&contact.OptedOut,
		&contact.LeadStatus,
		&contact.Timezone,
		&attributes,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(attributes, &contact.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact attributes: %w", err)
	}

	return &contact, nil
}
