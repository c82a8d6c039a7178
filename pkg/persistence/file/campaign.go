package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

// CampaignRepository handles campaign-related file operations. Stat appends
// for a campaign are serialized through a per-repository mutex so concurrent
// delivery callbacks cannot lose entries to read-modify-write races.
type CampaignRepository struct {
	root string
	mu   sync.Mutex
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(root string) *CampaignRepository {
	return &CampaignRepository{root: root}
}

// GetByID retrieves a campaign by its ID, returning (nil, nil) when missing.
func (cr *CampaignRepository) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	filePath := filepath.Clean(path.Join(cr.root, "campaigns", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch campaign %s: %w", id, err)
	}

	var campaign models.Campaign

	err = json.Unmarshal(body, &campaign)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaign %s: %w", id, err)
	}

	return &campaign, nil
}

// Save writes a campaign to the file system. The stats log is owned by
// AppendRecipientStat; a Save carrying a stale snapshot must not shrink it.
func (cr *CampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if campaign.ID != "" {
		existing, err := cr.GetByID(ctx, campaign.ID)
		if err != nil {
			return err
		}

		if existing != nil && len(existing.RecipientStats) > len(campaign.RecipientStats) {
			campaign.RecipientStats = existing.RecipientStats
		}
	}

	return cr.save(campaign)
}

func (cr *CampaignRepository) save(campaign *models.Campaign) error {
	err := os.MkdirAll(path.Join(cr.root, "campaigns"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create campaigns directory: %w", err)
	}

	now := time.Now().UTC()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}

	campaign.UpdatedAt = now

	if campaign.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate campaign ID: %w", err)
		}

		campaign.ID = id.String()
	}

	data, err := json.MarshalIndent(campaign, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal campaign %s: %w", campaign.ID, err)
	}

	filePath := path.Join(cr.root, "campaigns", campaign.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// AppendRecipientStat atomically appends one entry to the campaign's stats
// log. The read-append-write runs under the repository lock. A duplicate
// (recipient, status) pair is a no-op, which keeps callback handling
// idempotent at the storage layer as well.
func (cr *CampaignRepository) AppendRecipientStat(ctx context.Context, campaignID string, stat models.RecipientStat) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	campaign, err := cr.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if campaign == nil {
		return fmt.Errorf("failed to append stat: campaign %s not found", campaignID)
	}

	if campaign.StatFor(stat.RecipientID, stat.Status) {
		return nil
	}

	if stat.At.IsZero() {
		stat.At = time.Now().UTC()
	}

	campaign.RecipientStats = append(campaign.RecipientStats, stat)

	return cr.save(campaign)
}

// ListScheduled returns campaigns in scheduled status.
func (cr *CampaignRepository) ListScheduled(ctx context.Context) ([]*models.Campaign, error) {
	dir := path.Join(cr.root, "campaigns")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Campaign{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign files: %w", err)
	}

	scheduled := make([]*models.Campaign, 0)

	for _, file := range jsonFiles {
		campaignID := file[:len(file)-5]

		campaign, err := cr.GetByID(ctx, campaignID)
		if err != nil {
			return nil, err
		}

		if campaign != nil && campaign.Status == models.CampaignStatusScheduled {
			scheduled = append(scheduled, campaign)
		}
	}

	return scheduled, nil
}
