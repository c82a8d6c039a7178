package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// CampaignRepository handles campaign-related database operations. Recipient
// stats live in their own append-only table and are assembled on read.
type CampaignRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(db *sql.DB, logger *slog.Logger) *CampaignRepository {
	return &CampaignRepository{db: db, logger: logger}
}

const campaignColumns = `
	id
  , account_id
  , name
  , template_name
  , language
  , phone_number_id
  , recipient_ids
  , schedule
  , status
  , created_at
  , updated_at
  , completed_at
`

// GetByID returns a campaign with its recipient stats, or (nil, nil) when
// missing.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewCampaignQueryError(id, fmt.Errorf("failed to scan campaign: %w", err))
	}

	stats, err := r.recipientStats(ctx, id)
	if err != nil {
		return nil, persistence.NewCampaignQueryError(id, err)
	}

	campaign.RecipientStats = stats

	return campaign, nil
}

// Save upserts a campaign. Recipient stats are not written here, use
// AppendRecipientStat.
func (r *CampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	now := time.Now().UTC()

	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}

	campaign.UpdatedAt = now

	if campaign.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewCampaignSaveError(campaign.ID, fmt.Errorf("failed to generate campaign ID: %w", err))
		}

		campaign.ID = id.String()
	}

	query := `
		INSERT INTO campaigns (id, account_id, name, template_name, language,
			phone_number_id, recipient_ids, schedule, status, created_at,
			updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			template_name = EXCLUDED.template_name,
			language = EXCLUDED.language,
			phone_number_id = EXCLUDED.phone_number_id,
			recipient_ids = EXCLUDED.recipient_ids,
			schedule = EXCLUDED.schedule,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		campaign.ID, campaign.AccountID, campaign.Name, campaign.TemplateName,
		campaign.Language, campaign.PhoneNumberID, pq.Array(campaign.RecipientIDs),
		campaign.Schedule, campaign.Status, campaign.CreatedAt,
		campaign.UpdatedAt, campaign.CompletedAt)
	if err != nil {
		return persistence.NewCampaignSaveError(campaign.ID, err)
	}

	return nil
}

// AppendRecipientStat records one stat entry. A duplicate (recipient, status)
// pair for the same campaign is silently ignored, which keeps replayed
// provider callbacks from inflating the numbers.
func (r *CampaignRepository) AppendRecipientStat(ctx context.Context, campaignID string, stat models.RecipientStat) error {
	if stat.At.IsZero() {
		stat.At = time.Now().UTC()
	}

	query := `
		INSERT INTO campaign_recipient_stats (campaign_id, recipient_id, name,
			phone, status, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id, recipient_id, status) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		campaignID, stat.RecipientID, stat.Name, stat.Phone, stat.Status,
		stat.Error, stat.At)
	if err != nil {
		return persistence.NewCampaignSaveError(campaignID, fmt.Errorf("failed to append recipient stat: %w", err))
	}

	return nil
}

// ListScheduled returns campaigns waiting on their cron schedule.
func (r *CampaignRepository) ListScheduled(ctx context.Context) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, models.CampaignStatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign

	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}

		campaigns = append(campaigns, campaign)
	}

	return campaigns, rows.Err()
}

func (r *CampaignRepository) recipientStats(ctx context.Context, campaignID string) ([]models.RecipientStat, error) {
	query := `
		SELECT recipient_id, name, phone, status, error, at
		FROM campaign_recipient_stats
		WHERE campaign_id = $1
		ORDER BY at
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipient stats: %w", err)
	}
	defer rows.Close()

	var stats []models.RecipientStat

	for rows.Next() {
		var (
			stat    models.RecipientStat
			errText sql.NullString
		)

		err := rows.Scan(&stat.RecipientID, &stat.Name, &stat.Phone,
			&stat.Status, &errText, &stat.At)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient stat: %w", err)
		}

		stat.Error = errText.String
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var (
		campaign     models.Campaign
		recipientIDs pq.StringArray
		schedule     sql.NullString
	)

	err := row.Scan(&campaign.ID, &campaign.AccountID, &campaign.Name,
		&campaign.TemplateName, &campaign.Language, &campaign.PhoneNumberID,
		&recipientIDs, &schedule, &campaign.Status, &campaign.CreatedAt,
		&campaign.UpdatedAt, &campaign.CompletedAt)
	if err != nil {
		return nil, err
	}

	campaign.RecipientIDs = recipientIDs
	campaign.Schedule = schedule.String

	return &campaign, nil
}
