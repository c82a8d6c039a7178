package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapflow/zapflow/pkg/models"
)

// FlowStateRepository tracks where each recipient sits inside a flow. A
// missing row means the recipient is idle.
type FlowStateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowStateRepository creates a new flow state repository.
func NewFlowStateRepository(db *sql.DB, logger *slog.Logger) *FlowStateRepository {
	return &FlowStateRepository{db: db, logger: logger}
}

// Get returns the recipient's flow state, or (nil, nil) when idle.
func (r *FlowStateRepository) Get(ctx context.Context, recipientID string) (*models.FlowState, error) {
	query := `SELECT recipient_id, flow_id, node_id, updated_at FROM flow_states WHERE recipient_id = $1`

	var state models.FlowState

	err := r.db.QueryRowContext(ctx, query, recipientID).Scan(
		&state.RecipientID, &state.FlowID, &state.NodeID, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow state: %w", err)
	}

	return &state, nil
}

// Set upserts the recipient's flow state.
func (r *FlowStateRepository) Set(ctx context.Context, state *models.FlowState) error {
	state.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO flow_states (recipient_id, flow_id, node_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recipient_id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			node_id = EXCLUDED.node_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, state.RecipientID, state.FlowID, state.NodeID, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow state for recipient %s: %w", state.RecipientID, err)
	}

	return nil
}

// Clear resets the recipient to idle. Clearing an idle recipient is a no-op.
func (r *FlowStateRepository) Clear(ctx context.Context, recipientID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM flow_states WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return fmt.Errorf("failed to clear flow state for recipient %s: %w", recipientID, err)
	}

	return nil
}
