// Package services provides the authoring operations for journeys and their nodes.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/journey/pkg/graph"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrNodeNotFound is returned when a node is not found.
var ErrNodeNotFound = persistence.ErrNodeNotFound

// AddNodeRequest represents the request to add a node to a journey.
type AddNodeRequest struct {
	Type        models.NodeType `validate:"required"`
	Name        string          `validate:"required,min=1"`
	Config      json.RawMessage
	Connections models.Connections
}

// UpdateNodeRequest replaces a node's name, config and connections. The type
// cannot change.
type UpdateNodeRequest struct {
	Name        string `validate:"required,min=1"`
	Config      json.RawMessage
	Connections models.Connections
}

// Node handles node-related business operations.
type Node struct {
	journeys    *Journey
	persistence persistence.Persistence
	validate    *validator.Validate
	configs     ConfigValidator
}

// NewNode creates a new node service sharing the journey service's collaborators.
func NewNode(journeys *Journey) *Node {
	return &Node{
		journeys:    journeys,
		persistence: journeys.persistence,
		validate:    journeys.validate,
		configs:     journeys.configs,
	}
}

// ListNodes returns the journey's nodes in creation order.
func (n *Node) ListNodes(ctx context.Context, tenantID, journeyID string) ([]*models.JourneyNode, error) {
	_, err := n.journeys.Get(ctx, tenantID, journeyID)
	if err != nil {
		return nil, err
	}

	return n.persistence.Nodes().ListByJourney(ctx, journeyID)
}

// GetNode retrieves a specific node from the specified journey.
func (n *Node) GetNode(ctx context.Context, tenantID, journeyID, nodeID string) (*models.JourneyNode, error) {
	_, err := n.journeys.Get(ctx, tenantID, journeyID)
	if err != nil {
		return nil, err
	}

	return n.persistence.Nodes().GetByID(ctx, journeyID, nodeID)
}

// AddNode validates and stores a new node.
func (n *Node) AddNode(ctx context.Context, tenantID, journeyID string, req AddNodeRequest) (*models.JourneyNode, error) {
	err := n.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("AddNode", "invalid_node", err.Error(), ErrInvalidRequest)
	}

	if !slices.Contains(models.NodeTypes, req.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, req.Type)
	}

	journey, nodes, err := n.editable(ctx, tenantID, journeyID)
	if err != nil {
		return nil, err
	}

	now := n.journeys.clock().UTC()

	node := &models.JourneyNode{
		ID:          uuid.NewString(),
		JourneyID:   journey.ID,
		Type:        req.Type,
		Name:        req.Name,
		Connections: req.Connections,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = n.applyConfig(node, req.Config)
	if err != nil {
		return nil, err
	}

	err = checkEdges(node, nodes)
	if err != nil {
		return nil, err
	}

	err = n.persistence.Nodes().Save(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to save node: %w", err)
	}

	n.journeys.invalidate(journey.ID)

	return node, nil
}

// UpdateNode replaces a node's name, config and connections.
func (n *Node) UpdateNode(ctx context.Context, tenantID, journeyID, nodeID string, req UpdateNodeRequest) (*models.JourneyNode, error) {
	err := n.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("UpdateNode", "invalid_node", err.Error(), ErrInvalidRequest)
	}

	journey, nodes, err := n.editable(ctx, tenantID, journeyID)
	if err != nil {
		return nil, err
	}

	existing, err := n.persistence.Nodes().GetByID(ctx, journeyID, nodeID)
	if err != nil {
		return nil, err
	}

	node := *existing
	node.Name = req.Name
	node.Connections = req.Connections
	node.UpdatedAt = n.journeys.clock().UTC()

	err = n.applyConfig(&node, req.Config)
	if err != nil {
		return nil, err
	}

	err = checkEdges(&node, nodes)
	if err != nil {
		return nil, err
	}

	err = n.persistence.Nodes().Save(ctx, &node)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	n.journeys.invalidate(journey.ID)

	return &node, nil
}

// DeleteNode removes a node no other node points at.
func (n *Node) DeleteNode(ctx context.Context, tenantID, journeyID, nodeID string) error {
	journey, nodes, err := n.editable(ctx, tenantID, journeyID)
	if err != nil {
		return err
	}

	found := false

	var referrers []string

	for _, other := range nodes {
		if other.ID == nodeID {
			found = true

			continue
		}

		if slices.Contains(other.Connections.Targets(), nodeID) {
			referrers = append(referrers, other.ID)
		}
	}

	if !found {
		return persistence.NewNodeError("DeleteNode", journeyID, nodeID, persistence.ErrNodeNotFound)
	}

	if len(referrers) > 0 {
		return fmt.Errorf("%w: %v", ErrNodeReferenced, referrers)
	}

	err = n.persistence.Nodes().Delete(ctx, journeyID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	n.journeys.invalidate(journey.ID)

	return nil
}

// editable loads a journey that may still be edited together with its nodes.
func (n *Node) editable(ctx context.Context, tenantID, journeyID string) (*models.Journey, []*models.JourneyNode, error) {
	journey, err := n.journeys.Get(ctx, tenantID, journeyID)
	if err != nil {
		return nil, nil, err
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, nil, ErrCannotModifyArchived
	}

	nodes, err := n.persistence.Nodes().ListByJourney(ctx, journeyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	return journey, nodes, nil
}

// applyConfig decodes raw into the node's typed config and validates it by
// struct tags and by the JSON schema of its type.
func (n *Node) applyConfig(node *models.JourneyNode, raw json.RawMessage) error {
	config, err := models.DecodeNodeConfig(node.Type, raw)
	if err != nil {
		if errors.Is(err, models.ErrUnknownNodeType) {
			return fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type)
		}

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	err = n.validate.Struct(config)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	node.Config = config

	if n.configs != nil {
		err = n.configs.ValidateConfig(node)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}

// checkEdges requires every edge of node to be a canonical id of a node in
// the journey, node itself included.
func checkEdges(node *models.JourneyNode, nodes []*models.JourneyNode) error {
	known := make(map[string]bool, len(nodes)+1)
	for _, other := range nodes {
		known[other.ID] = true
	}

	known[node.ID] = true

	for _, target := range node.Connections.Targets() {
		err := graph.ValidateNodeID(target)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEdge, err)
		}

		if !known[target] {
			return fmt.Errorf("%w: %s references unknown node %s", ErrInvalidEdge, node.ID, target)
		}
	}

	return nil
}
