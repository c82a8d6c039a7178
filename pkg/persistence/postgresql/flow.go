package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// List returns all flows of an account, newest first.
func (r *FlowRepository) List(ctx context.Context, accountID string) ([]*models.Flow, error) {
	query := `
		SELECT
			id
		  , account_id
		  , name
		  , triggers
		  , start_node
		  , nodes
		  , status
		  , created_at
		  , updated_at
		FROM flows
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID returns a flow by its ID, or (nil, nil) when missing.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `
		SELECT
			id
		  , account_id
		  , name
		  , triggers
		  , start_node
		  , nodes
		  , status
		  , created_at
		  , updated_at
		FROM flows
		WHERE id = $1
	`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

// Save upserts a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	triggersJSON, err := json.Marshal(flow.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	nodesJSON, err := json.Marshal(flow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
		INSERT INTO flows (id, account_id, name, triggers, start_node, nodes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			triggers = EXCLUDED.triggers,
			start_node = EXCLUDED.start_node,
			nodes = EXCLUDED.nodes,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID, flow.AccountID, flow.Name, triggersJSON, flow.Start, nodesJSON,
		flow.Status, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}

// Delete removes a flow by its ID.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow         models.Flow
		triggersJSON []byte
		nodesJSON    []byte
	)

	err := row.Scan(&flow.ID, &flow.AccountID, &flow.Name, &triggersJSON,
		&flow.Start, &nodesJSON, &flow.Status, &flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggersJSON, &flow.Triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}

	err = json.Unmarshal(nodesJSON, &flow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	return &flow, nil
}
