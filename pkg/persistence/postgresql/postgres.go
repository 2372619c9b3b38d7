// Package postgresql provides the PostgreSQL implementation of the journey persistence layer.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements persistence.Persistence on top of PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	journeys        *JourneyRepository
	nodes           *NodeRepository
	journeyContacts *JourneyContactRepository
	executions      *ExecutionRepository
	contacts        *ContactRepository
	tenants         *TenantRepository
	campaigns       *CampaignRepository
	webhooks        *WebhookRepository
	callLogs        *CallLogRepository
	messages        *MessageRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects to databaseURL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	base := repository{db: database, logger: logger}

	return &Persistence{
		db:              database,
		logger:          logger,
		journeys:        &JourneyRepository{base},
		nodes:           &NodeRepository{base},
		journeyContacts: &JourneyContactRepository{base},
		executions:      &ExecutionRepository{base},
		contacts:        &ContactRepository{base},
		tenants:         &TenantRepository{base},
		campaigns:       &CampaignRepository{base},
		webhooks:        &WebhookRepository{base},
		callLogs:        &CallLogRepository{base},
		messages:        &MessageRepository{base},
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Journeys() persistence.JourneyRepository               { return p.journeys }
func (p *Persistence) Nodes() persistence.NodeRepository                     { return p.nodes }
func (p *Persistence) JourneyContacts() persistence.JourneyContactRepository { return p.journeyContacts }
func (p *Persistence) Executions() persistence.ExecutionRepository           { return p.executions }
func (p *Persistence) Contacts() persistence.ContactRepository               { return p.contacts }
func (p *Persistence) Tenants() persistence.TenantRepository                 { return p.tenants }
func (p *Persistence) Campaigns() persistence.CampaignRepository             { return p.campaigns }
func (p *Persistence) Webhooks() persistence.WebhookRepository               { return p.webhooks }
func (p *Persistence) CallLogs() persistence.CallLogRepository               { return p.callLogs }
func (p *Persistence) Messages() persistence.MessageRepository               { return p.messages }

// repository carries what every table repository needs.
type repository struct {
	db     *sql.DB
	logger *slog.Logger
}

type scanner interface {
	Scan(dest ...any) error
}

func (r repository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// nullableJSON encodes v for a nullable JSONB column, storing NULL for nil values.
func nullableJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	if string(data) == "null" {
		return nil, nil
	}

	return string(data), nil
}

// objectJSON encodes v for a NOT NULL JSONB column, storing {} for nil values.
func objectJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	if string(data) == "null" {
		return "{}", nil
	}

	return string(data), nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}
