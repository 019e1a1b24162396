// Package repository provides durable conversation memory backends.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/config"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// Store is durable conversation memory keyed by (memory id, session id, actor id).
type Store interface {
	// Append persists messages in order at the end of the session's history.
	Append(ctx context.Context, key domain.MemoryKey, msgs ...domain.Message) error

	// Events returns the session's history, oldest first. A session with no
	// history yields an empty slice and no error.
	Events(ctx context.Context, key domain.MemoryKey) ([]domain.MemoryEvent, error)

	// ListSessions returns up to limit sessions of an actor, newest first.
	ListSessions(ctx context.Context, memoryID, actorID string, limit int) ([]domain.SessionSummary, error)

	// Close releases the backend's resources.
	Close() error
}

// Open builds the backend selected by cfg, wrapped with metrics.
func Open(ctx context.Context, cfg config.MemoryConfig, region string) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err = NewSQLiteStore(cfg.DatabaseURL)
	case config.BackendRedis:
		s, err = NewRedisStoreFromURL(cfg.RedisURL, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
	default:
		s, err = NewAgentCoreStoreFromConfig(ctx, region)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s memory: %w", cfg.Backend, err)
	}
	return Instrument(cfg.Backend, s), nil
}

func validateActor(memoryID, actorID string) error {
	if strings.TrimSpace(memoryID) == "" {
		return domain.MissingField("memory id is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.MissingField("actor id is required")
	}
	return nil
}
