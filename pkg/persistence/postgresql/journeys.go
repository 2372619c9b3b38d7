package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// JourneyRepository handles journey rows.
type JourneyRepository struct {
	repository
}

const journeyColumns = `
			id
		  , tenant_id
		  , name
		  , description
		  , status
		  , schedule
		  , entry_criteria
		  , removal_criteria
		  , auto_enroll
		  , started_at
		  , paused_at
		  , archived_at
		  , created_at
		  , updated_at`

// List returns the tenant's journeys, newest first. An empty tenant lists every journey.
func (r *JourneyRepository) List(ctx context.Context, tenantID string) ([]*models.Journey, error) {
	query := `SELECT ` + journeyColumns + `
		FROM journeys
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, nil
}

func (r *JourneyRepository) GetByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE id = $1`

	journey, err := scanJourney(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
		}

		return nil, persistence.NewJourneyError("GetByID", id, err)
	}

	return journey, nil
}

func (r *JourneyRepository) Save(ctx context.Context, journey *models.Journey) error {
	schedule, err := nullableJSON(journey.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	entry, err := nullableJSON(journey.EntryCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal entry criteria: %w", err)
	}

	removal, err := objectJSON(journey.RemovalCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal removal criteria: %w", err)
	}

	query := `
		INSERT INTO journeys (id, tenant_id, name, description, status, schedule, entry_criteria,
			removal_criteria, auto_enroll, started_at, paused_at, archived_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			schedule = EXCLUDED.schedule,
			entry_criteria = EXCLUDED.entry_criteria,
			removal_criteria = EXCLUDED.removal_criteria,
			auto_enroll = EXCLUDED.auto_enroll,
			started_at = EXCLUDED.started_at,
			paused_at = EXCLUDED.paused_at,
			archived_at = EXCLUDED.archived_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		journey.ID,
		journey.TenantID,
		journey.Name,
		journey.Description,
		journey.Status,
		schedule,
		entry,
		removal,
		journey.AutoEnroll,
		journey.StartedAt,
		journey.PausedAt,
		journey.ArchivedAt,
		journey.CreatedAt,
		journey.UpdatedAt,
	)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, err)
	}

	return nil
}

// Delete removes the journey. Nodes and memberships go with it through ON DELETE CASCADE.
func (r *JourneyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM journeys WHERE id = $1`, id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewJourneyError("Delete", id, persistence.ErrJourneyNotFound)
	}

	return nil
}

func scanJourney(row scanner) (*models.Journey, error) {
	var (
		journey                         models.Journey
		schedule, entry, removalCriteria []byte
	)

	err := row.Scan(
		&journey.ID,
		&journey.TenantID,
		&journey.Name,
		&journey.Description,
		&journey.Status,
		&schedule,
		&entry,
		&removalCriteria,
		&journey.AutoEnroll,
		&journey.StartedAt,
		&journey.PausedAt,
		&journey.ArchivedAt,
		&journey.CreatedAt,
		&journey.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(schedule) > 0 {
		journey.Schedule = &models.ScheduleConstraints{}

		err = unmarshalJSON(schedule, journey.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}
	}

	err = unmarshalJSON(entry, &journey.EntryCriteria)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry criteria: %w", err)
	}

	err = unmarshalJSON(removalCriteria, &journey.RemovalCriteria)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal removal criteria: %w", err)
	}

	return &journey, nil
}

// NodeRepository handles journey_nodes rows.
type NodeRepository struct {
	repository
}

const nodeColumns = `
			journey_id
		  , id
		  , node_type
		  , name
		  , config
		  , connections
		  , created_at
		  , updated_at`

func (r *NodeRepository) ListByJourney(ctx context.Context, journeyID string) ([]*models.JourneyNode, error) {
	query := `SELECT ` + nodeColumns + `
		FROM journey_nodes
		WHERE journey_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey nodes: %w", err)
	}

	defer r.closeRows(ctx, rows)

	nodes := make([]*models.JourneyNode, 0)

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey node: %w", err)
		}

		nodes = append(nodes, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journey nodes: %w", err)
	}

	return nodes, nil
}

func (r *NodeRepository) GetByID(ctx context.Context, journeyID, nodeID string) (*models.JourneyNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM journey_nodes WHERE journey_id = $1 AND id = $2`

	node, err := scanNode(r.db.QueryRowContext(ctx, query, journeyID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNodeError("GetByID", journeyID, nodeID, persistence.ErrNodeNotFound)
		}

		return nil, persistence.NewNodeError("GetByID", journeyID, nodeID, err)
	}

	return node, nil
}

func (r *NodeRepository) Save(ctx context.Context, node *models.JourneyNode) error {
	config, err := objectJSON(node.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	connections, err := objectJSON(node.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal node connections: %w", err)
	}

	query := `
		INSERT INTO journey_nodes (journey_id, id, node_type, name, config, connections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (journey_id, id) DO UPDATE SET
			node_type = EXCLUDED.node_type,
			name = EXCLUDED.name,
			config = EXCLUDED.config,
			connections = EXCLUDED.connections,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		node.JourneyID,
		node.ID,
		node.Type,
		node.Name,
		config,
		connections,
		node.CreatedAt,
		node.UpdatedAt,
	)
	if err != nil {
		return persistence.NewNodeError("Save", node.JourneyID, node.ID, err)
	}

	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, journeyID, nodeID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM journey_nodes WHERE journey_id = $1 AND id = $2`, journeyID, nodeID)
	if err != nil {
		return persistence.NewNodeError("Delete", journeyID, nodeID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewNodeError("Delete", journeyID, nodeID, persistence.ErrNodeNotFound)
	}

	return nil
}

func scanNode(row scanner) (*models.JourneyNode, error) {
	var (
		node                models.JourneyNode
		config, connections []byte
	)

	err := row.Scan(
		&node.JourneyID,
		&node.ID,
		&node.Type,
		&node.Name,
		&config,
		&connections,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	node.Config, err = models.DecodeNodeConfig(node.Type, config)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(connections, &node.Connections)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node connections: %w", err)
	}

	return &node, nil
}
