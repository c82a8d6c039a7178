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

// MessageRepository handles message-related file operations.
type MessageRepository struct {
	root string
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(root string) *MessageRepository {
	return &MessageRepository{root: root}
}

// GetByID retrieves a message by its ID, returning (nil, nil) when missing.
func (mr *MessageRepository) GetByID(_ context.Context, id string) (*models.Message, error) {
	filePath := filepath.Clean(path.Join(mr.root, "messages", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	var message models.Message

	err = json.Unmarshal(body, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", id, err)
	}

	return &message, nil
}

// GetByWAMID scans messages for the given provider message id.
func (mr *MessageRepository) GetByWAMID(ctx context.Context, wamid string) (*models.Message, error) {
	dir := path.Join(mr.root, "messages")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list message files: %w", err)
	}

	for _, file := range jsonFiles {
		messageID := file[:len(file)-5]

		message, err := mr.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}

		if message != nil && message.WAMID == wamid {
			return message, nil
		}
	}

	return nil, nil
}

// Save writes a message to the file system.
func (mr *MessageRepository) Save(_ context.Context, message *models.Message) error {
	err := os.MkdirAll(path.Join(mr.root, "messages"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create messages directory: %w", err)
	}

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

	data, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", message.ID, err)
	}

	filePath := path.Join(mr.root, "messages", message.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}
