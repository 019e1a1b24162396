package repository

import (
	"context"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/metrics"
)

type instrumented struct {
	backend string
	next    Store
}

// Instrument counts every call made to s under the backend label.
func Instrument(backend string, s Store) Store {
	return &instrumented{backend: backend, next: s}
}

func (i *instrumented) Append(ctx context.Context, key domain.MemoryKey, msgs ...domain.Message) error {
	err := i.next.Append(ctx, key, msgs...)
	metrics.MemoryOperations.WithLabelValues(i.backend, "append", metrics.Outcome(err)).Inc()
	return err
}

func (i *instrumented) Events(ctx context.Context, key domain.MemoryKey) ([]domain.MemoryEvent, error) {
	events, err := i.next.Events(ctx, key)
	metrics.MemoryOperations.WithLabelValues(i.backend, "events", metrics.Outcome(err)).Inc()
	return events, err
}

func (i *instrumented) ListSessions(ctx context.Context, memoryID, actorID string, limit int) ([]domain.SessionSummary, error) {
	sessions, err := i.next.ListSessions(ctx, memoryID, actorID, limit)
	metrics.MemoryOperations.WithLabelValues(i.backend, "list_sessions", metrics.Outcome(err)).Inc()
	return sessions, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
