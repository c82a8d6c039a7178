// Package cmd provides common initialization for the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/persistence/file"
	"github.com/zapflow/zapflow/pkg/persistence/postgresql"
	"github.com/zapflow/zapflow/pkg/persistence/redisstate"
)

// NewPersistence selects the storage backend from the database URL scheme:
// postgres:// selects PostgreSQL, anything else the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewStateStore selects where per-recipient flow state lives. A redis:// URL
// selects the Redis store with the given TTL; empty falls back to the main
// persistence layer.
func NewStateStore(ctx context.Context, logger *slog.Logger, p persistence.Persistence, stateURL string, ttl time.Duration) (persistence.FlowStateRepository, error) {
	if stateURL == "" {
		return p.FlowStates(), nil
	}

	if !strings.HasPrefix(stateURL, "redis://") && !strings.HasPrefix(stateURL, "rediss://") {
		return nil, fmt.Errorf("unsupported state store URL: %s", stateURL)
	}

	return redisstate.NewStore(ctx, logger, stateURL, ttl)
}
