package file

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type journeyContactRepository struct {
	p *Persistence
}

func (r *journeyContactRepository) GetByID(_ context.Context, id string) (*models.JourneyContact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	jc, err := r.p.journeyContacts.get(id)
	if err != nil {
		return nil, err
	}

	if jc == nil {
		return nil, fmt.Errorf("journey contact %s: %w", id, persistence.ErrJourneyContactNotFound)
	}

	return jc, nil
}

func (r *journeyContactRepository) GetByJourneyAndContact(_ context.Context, journeyID, contactID string) (*models.JourneyContact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.journeyContacts.matching(func(jc *models.JourneyContact) bool {
		return jc.JourneyID == journeyID && jc.ContactID == contactID
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("contact %s in journey %s: %w", contactID, journeyID, persistence.ErrJourneyContactNotFound)
	}

	return found[0], nil
}

func (r *journeyContactRepository) ListByJourney(_ context.Context, journeyID string, status models.JourneyContactStatus) ([]*models.JourneyContact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.journeyContacts.matching(func(jc *models.JourneyContact) bool {
		return jc.JourneyID == journeyID && (status == "" || jc.Status == status)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(found, func(a, b *models.JourneyContact) int {
		return a.EnrolledAt.Compare(b.EnrolledAt)
	})

	return found, nil
}

func (r *journeyContactRepository) Save(_ context.Context, jc *models.JourneyContact) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.journeyContacts.put(jc.ID, jc)
}

func (r *journeyContactRepository) ActiveEnrollmentsByPhone(_ context.Context, tenantID, phone string, since time.Time, excludeJourneyID string) ([]*models.JourneyContact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	contacts, err := r.p.contacts.matching(func(c *models.Contact) bool {
		return c.TenantID == tenantID && c.Phone == phone
	})
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		ids[c.ID] = true
	}

	return r.p.journeyContacts.matching(func(jc *models.JourneyContact) bool {
		return ids[jc.ContactID] &&
			jc.TenantID == tenantID &&
			jc.Status == models.JourneyContactActive &&
			jc.JourneyID != excludeJourneyID &&
			!jc.EnrolledAt.Before(since)
	})
}

type contactRepository struct {
	p *Persistence
}

func (r *contactRepository) GetByID(_ context.Context, tenantID, id string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.get(tenantID, id)
}

func (r *contactRepository) get(tenantID, id string) (*models.Contact, error) {
	c, err := r.p.contacts.get(id)
	if err != nil {
		return nil, err
	}

	if c == nil || (tenantID != "" && c.TenantID != tenantID) {
		return nil, fmt.Errorf("contact %s: %w", id, persistence.ErrContactNotFound)
	}

	return c, nil
}

func (r *contactRepository) GetByPhone(_ context.Context, tenantID, phone string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found, err := r.p.contacts.matching(func(c *models.Contact) bool {
		return c.TenantID == tenantID && c.Phone == phone
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("contact with phone %s: %w", phone, persistence.ErrContactNotFound)
	}

	return found[0], nil
}

func (r *contactRepository) Save(_ context.Context, contact *models.Contact) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.contacts.put(contact.ID, contact)
}

func (r *contactRepository) MergeAttributes(_ context.Context, tenantID, id string, attributes map[string]any) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	c, err := r.get(tenantID, id)
	if err != nil {
		return err
	}

	if c.Attributes == nil {
		c.Attributes = make(map[string]any, len(attributes))
	}

	maps.Copy(c.Attributes, attributes)
	c.UpdatedAt = time.Now().UTC()

	return r.p.contacts.put(c.ID, c)
}
