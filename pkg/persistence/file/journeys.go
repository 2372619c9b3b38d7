package file

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type journeyRepository struct {
	p *Persistence
}

func (r *journeyRepository) List(_ context.Context, tenantID string) ([]*models.Journey, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	journeys, err := r.p.journeys.matching(func(j *models.Journey) bool {
		return tenantID == "" || j.TenantID == tenantID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(journeys, func(a, b *models.Journey) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return journeys, nil
}

func (r *journeyRepository) GetByID(_ context.Context, id string) (*models.Journey, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	j, err := r.p.journeys.get(id)
	if err != nil {
		return nil, persistence.NewJourneyError("GetByID", id, err)
	}

	if j == nil {
		return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
	}

	return j, nil
}

func (r *journeyRepository) Save(_ context.Context, journey *models.Journey) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.journeys.put(journey.ID, journey)
}

func (r *journeyRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	deleted, err := r.p.journeys.delete(id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	if !deleted {
		return persistence.NewJourneyError("Delete", id, persistence.ErrJourneyNotFound)
	}

	nodes, err := r.p.nodes.matching(func(n *models.JourneyNode) bool { return n.JourneyID == id })
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	for _, n := range nodes {
		if _, err := r.p.nodes.delete(key(id, n.ID)); err != nil {
			return persistence.NewNodeError("Delete", id, n.ID, err)
		}
	}

	return nil
}

type nodeRepository struct {
	p *Persistence
}

func (r *nodeRepository) ListByJourney(_ context.Context, journeyID string) ([]*models.JourneyNode, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	nodes, err := r.p.nodes.matching(func(n *models.JourneyNode) bool { return n.JourneyID == journeyID })
	if err != nil {
		return nil, err
	}

	slices.SortFunc(nodes, func(a, b *models.JourneyNode) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return nodes, nil
}

func (r *nodeRepository) GetByID(_ context.Context, journeyID, nodeID string) (*models.JourneyNode, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	n, err := r.p.nodes.get(key(journeyID, nodeID))
	if err != nil {
		return nil, persistence.NewNodeError("GetByID", journeyID, nodeID, err)
	}

	if n == nil {
		return nil, persistence.NewNodeError("GetByID", journeyID, nodeID, persistence.ErrNodeNotFound)
	}

	return n, nil
}

func (r *nodeRepository) Save(_ context.Context, node *models.JourneyNode) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.nodes.put(key(node.JourneyID, node.ID), node)
}

func (r *nodeRepository) Delete(_ context.Context, journeyID, nodeID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	deleted, err := r.p.nodes.delete(key(journeyID, nodeID))
	if err != nil {
		return persistence.NewNodeError("Delete", journeyID, nodeID, err)
	}

	if !deleted {
		return persistence.NewNodeError("Delete", journeyID, nodeID, persistence.ErrNodeNotFound)
	}

	return nil
}
