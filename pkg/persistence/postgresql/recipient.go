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

// RecipientRepository handles recipient-related database operations.
type RecipientRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecipientRepository creates a new recipient repository.
func NewRecipientRepository(db *sql.DB, logger *slog.Logger) *RecipientRepository {
	return &RecipientRepository{db: db, logger: logger}
}

const recipientColumns = `
	id
  , account_id
  , phone
  , name
  , attributes
  , has_conversation
  , opted_out
  , status
  , active_campaign_id
  , created_at
  , updated_at
`

// GetByID returns a recipient by its ID, or (nil, nil) when missing.
func (r *RecipientRepository) GetByID(ctx context.Context, id string) (*models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1`

	recipient, err := scanRecipient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}

	return recipient, nil
}

// GetByPhone returns the recipient bound to a phone number within an account,
// or (nil, nil) when unknown.
func (r *RecipientRepository) GetByPhone(ctx context.Context, accountID, phone string) (*models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE account_id = $1 AND phone = $2`

	recipient, err := scanRecipient(r.db.QueryRowContext(ctx, query, accountID, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}

	return recipient, nil
}

// Save upserts a recipient.
func (r *RecipientRepository) Save(ctx context.Context, recipient *models.Recipient) error {
	return saveRecipient(ctx, r.db, recipient)
}

// CreateWithMessage persists a new recipient and its first inbound message in
// a single transaction.
func (r *RecipientRepository) CreateWithMessage(ctx context.Context, recipient *models.Recipient, message *models.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = saveRecipient(ctx, tx, recipient)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	if message.RecipientID == "" {
		message.RecipientID = recipient.ID
	}

	err = saveMessage(ctx, tx, message)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit recipient creation: %w", err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRecipient(ctx context.Context, db execer, recipient *models.Recipient) error {
	now := time.Now().UTC()

	if recipient.CreatedAt.IsZero() {
		recipient.CreatedAt = now
	}

	recipient.UpdatedAt = now

	if recipient.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate recipient ID: %w", err)
		}

		recipient.ID = id.String()
	}

	attributesJSON, err := json.Marshal(recipient.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO recipients (id, account_id, phone, name, attributes, has_conversation,
			opted_out, status, active_campaign_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			attributes = EXCLUDED.attributes,
			has_conversation = EXCLUDED.has_conversation,
			opted_out = EXCLUDED.opted_out,
			status = EXCLUDED.status,
			active_campaign_id = EXCLUDED.active_campaign_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		recipient.ID, recipient.AccountID, recipient.Phone, recipient.Name, attributesJSON,
		recipient.HasConversation, recipient.OptedOut, recipient.Status,
		recipient.ActiveCampaignID, recipient.CreatedAt, recipient.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recipient %s: %w", recipient.ID, err)
	}

	return nil
}

func scanRecipient(row rowScanner) (*models.Recipient, error) {
	var (
		recipient      models.Recipient
		name           sql.NullString
		attributesJSON []byte
	)

	err := row.Scan(&recipient.ID, &recipient.AccountID, &recipient.Phone, &name,
		&attributesJSON, &recipient.HasConversation, &recipient.OptedOut,
		&recipient.Status, &recipient.ActiveCampaignID, &recipient.CreatedAt, &recipient.UpdatedAt)
	if err != nil {
		return nil, err
	}

	recipient.Name = name.String

	if len(attributesJSON) > 0 {
		err = json.Unmarshal(attributesJSON, &recipient.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}

	return &recipient, nil
}
