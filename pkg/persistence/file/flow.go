package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	root string
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

// List returns all flows of an account, newest first.
func (fr *FlowRepository) List(ctx context.Context, accountID string) ([]*models.Flow, error) {
	dir := path.Join(fr.root, "flows")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Flow{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	flows := make([]*models.Flow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flowID := file[:len(file)-5] // strip .json

		flow, err := fr.GetByID(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
		}

		if flow != nil && flow.AccountID == accountID {
			flows = append(flows, flow)
		}
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

// GetByID retrieves a flow by its ID, returning (nil, nil) when missing.
func (fr *FlowRepository) GetByID(_ context.Context, flowID string) (*models.Flow, error) {
	filePath := filepath.Clean(path.Join(fr.root, "flows", flowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch flow %s: %w", flowID, err)
	}

	var flow models.Flow

	err = json.Unmarshal(body, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", flowID, err)
	}

	return &flow, nil
}

// Save writes a flow to the file system.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	err := os.MkdirAll(path.Join(fr.root, "flows"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

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

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	filePath := path.Join(fr.root, "flows", flow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a flow by its ID.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(fr.root, "flows", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}
