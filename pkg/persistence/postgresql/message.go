package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

// MessageRepository handles message-related database operations.
type MessageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *sql.DB, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger}
}

const messageColumns = `
	id
  , account_id
  , recipient_id
  , campaign_id
  , direction
  , wamid
  , body
  , status
  , error
  , created_at
  , updated_at
`

// GetByID returns a message by its ID, or (nil, nil) when missing.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	return message, nil
}

// GetByWAMID returns the message correlated to a provider message id, or
// (nil, nil) when unknown.
func (r *MessageRepository) GetByWAMID(ctx context.Context, wamid string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE wamid = $1 ORDER BY created_at DESC LIMIT 1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, wamid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	return message, nil
}

// Save upserts a message.
func (r *MessageRepository) Save(ctx context.Context, message *models.Message) error {
	return saveMessage(ctx, r.db, message)
}

func saveMessage(ctx context.Context, db execer, message *models.Message) error {
	now := time.Now().UTC()

	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}

	message.UpdatedAt = now

	if message.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message ID: %w", err)
		}

		message.ID = id.String()
	}

	query := `
		INSERT INTO messages (id, account_id, recipient_id, campaign_id, direction,
			wamid, body, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			wamid = EXCLUDED.wamid,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		message.ID, message.AccountID, message.RecipientID, message.CampaignID,
		message.Direction, message.WAMID, message.Body, message.Status,
		message.Error, message.CreatedAt, message.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", message.ID, err)
	}

	return nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		message models.Message
		wamid   sql.NullString
		body    sql.NullString
		errText sql.NullString
	)

	err := row.Scan(&message.ID, &message.AccountID, &message.RecipientID,
		&message.CampaignID, &message.Direction, &wamid, &body,
		&message.Status, &errText, &message.CreatedAt, &message.UpdatedAt)
	if err != nil {
		return nil, err
	}

	message.WAMID = wamid.String
	message.Body = body.String
	message.Error = errText.String

	return &message, nil
}
