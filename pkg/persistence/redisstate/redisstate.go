// Package redisstate stores per-recipient flow state in Redis with an
// optional expiry, so abandoned conversations fall back to idle on their own.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/zapflow/zapflow/pkg/models"
)

const keyPrefix = "zapflow:flowstate:"

// Store implements persistence.FlowStateRepository on top of Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

// NewStore connects to Redis at redisURL. A ttl of zero keeps states forever.
func NewStore(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{
		client: client,
		logger: logger.With("module", "redisstate"),
		ttl:    ttl,
	}, nil
}

// Get returns the recipient's flow state, or (nil, nil) when idle or expired.
func (s *Store) Get(ctx context.Context, recipientID string) (*models.FlowState, error) {
	data, err := s.client.Get(ctx, keyPrefix+recipientID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get flow state for recipient %s: %w", recipientID, err)
	}

	var state models.FlowState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow state for recipient %s: %w", recipientID, err)
	}

	return &state, nil
}

// Set upserts the recipient's flow state, refreshing the expiry.
func (s *Store) Set(ctx context.Context, state *models.FlowState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state for recipient %s: %w", state.RecipientID, err)
	}

	err = s.client.Set(ctx, keyPrefix+state.RecipientID, data, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set flow state for recipient %s: %w", state.RecipientID, err)
	}

	return nil
}

// Clear resets the recipient to idle. Clearing an idle recipient is a no-op.
func (s *Store) Clear(ctx context.Context, recipientID string) error {
	err := s.client.Del(ctx, keyPrefix+recipientID).Err()
	if err != nil {
		return fmt.Errorf("failed to clear flow state for recipient %s: %w", recipientID, err)
	}

	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
