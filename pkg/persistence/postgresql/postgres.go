// Package postgresql provides PostgreSQL persistence for flows, recipients,
// messages and campaigns.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	flowRepo      *FlowRepository
	recipientRepo *RecipientRepository
	messageRepo   *MessageRepository
	campaignRepo  *CampaignRepository
	flowStateRepo *FlowStateRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs migrations.
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

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		flowRepo:      NewFlowRepository(database, logger),
		recipientRepo: NewRecipientRepository(database, logger),
		messageRepo:   NewMessageRepository(database, logger),
		campaignRepo:  NewCampaignRepository(database, logger),
		flowStateRepo: NewFlowStateRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

func (p *Persistence) Flows() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) Recipients() persistence.RecipientRepository {
	return p.recipientRepo
}

func (p *Persistence) Messages() persistence.MessageRepository {
	return p.messageRepo
}

func (p *Persistence) Campaigns() persistence.CampaignRepository {
	return p.campaignRepo
}

func (p *Persistence) FlowStates() persistence.FlowStateRepository {
	return p.flowStateRepo
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
