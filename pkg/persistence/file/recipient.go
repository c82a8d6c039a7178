package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

// RecipientRepository handles recipient-related file operations.
type RecipientRepository struct {
	root     string
	messages *MessageRepository
}

// NewRecipientRepository creates a new recipient repository.
func NewRecipientRepository(root string, messages *MessageRepository) *RecipientRepository {
	return &RecipientRepository{root: root, messages: messages}
}

// GetByID retrieves a recipient by its ID, returning (nil, nil) when missing.
func (rr *RecipientRepository) GetByID(_ context.Context, id string) (*models.Recipient, error) {
	filePath := filepath.Clean(path.Join(rr.root, "recipients", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch recipient %s: %w", id, err)
	}

	var recipient models.Recipient

	err = json.Unmarshal(body, &recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient %s: %w", id, err)
	}

	return &recipient, nil
}

// GetByPhone scans the account's recipients for a matching phone number.
func (rr *RecipientRepository) GetByPhone(ctx context.Context, accountID, phone string) (*models.Recipient, error) {
	dir := path.Join(rr.root, "recipients")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list recipient files: %w", err)
	}

	for _, file := range jsonFiles {
		recipientID := file[:len(file)-5]

		recipient, err := rr.GetByID(ctx, recipientID)
		if err != nil {
			return nil, err
		}

		if recipient != nil && recipient.AccountID == accountID && recipient.Phone == phone {
			return recipient, nil
		}
	}

	return nil, nil
}

// Save writes a recipient to the file system.
func (rr *RecipientRepository) Save(_ context.Context, recipient *models.Recipient) error {
	err := os.MkdirAll(path.Join(rr.root, "recipients"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create recipients directory: %w", err)
	}

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

	data, err := json.MarshalIndent(recipient, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recipient %s: %w", recipient.ID, err)
	}

	filePath := path.Join(rr.root, "recipients", recipient.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// CreateWithMessage persists a new recipient together with its first inbound
// message. The recipient file is written first; if the message write fails
// the recipient file is removed again so neither half is left dangling.
func (rr *RecipientRepository) CreateWithMessage(ctx context.Context, recipient *models.Recipient, message *models.Message) error {
	err := rr.Save(ctx, recipient)
	if err != nil {
		return err
	}

	if message.RecipientID == "" {
		message.RecipientID = recipient.ID
	}

	err = rr.messages.Save(ctx, message)
	if err != nil {
		_ = os.Remove(path.Join(rr.root, "recipients", recipient.ID+".json"))

		return fmt.Errorf("failed to save first message for recipient %s: %w", recipient.ID, err)
	}

	return nil
}
