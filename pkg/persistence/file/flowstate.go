package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/zapflow/zapflow/pkg/models"
)

// FlowStateRepository handles per-recipient flow state file operations.
type FlowStateRepository struct {
	root string
}

// NewFlowStateRepository creates a new flow state repository.
func NewFlowStateRepository(root string) *FlowStateRepository {
	return &FlowStateRepository{root: root}
}

// Get retrieves the flow state for a recipient, returning (nil, nil) when Idle.
func (sr *FlowStateRepository) Get(_ context.Context, recipientID string) (*models.FlowState, error) {
	filePath := filepath.Clean(path.Join(sr.root, "flow_states", recipientID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch flow state for recipient %s: %w", recipientID, err)
	}

	var state models.FlowState

	err = json.Unmarshal(body, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow state for recipient %s: %w", recipientID, err)
	}

	return &state, nil
}

// Set writes the flow state for a recipient.
func (sr *FlowStateRepository) Set(_ context.Context, state *models.FlowState) error {
	err := os.MkdirAll(path.Join(sr.root, "flow_states"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create flow_states directory: %w", err)
	}

	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow state for recipient %s: %w", state.RecipientID, err)
	}

	filePath := path.Join(sr.root, "flow_states", state.RecipientID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Clear removes the flow state for a recipient, returning it to Idle.
func (sr *FlowStateRepository) Clear(_ context.Context, recipientID string) error {
	filePath := path.Join(sr.root, "flow_states", recipientID+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to clear flow state for recipient %s: %w", recipientID, err)
	}

	return nil
}
