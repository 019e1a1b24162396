package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/metrics"
)

// Factory builds the agent for a memory key, rehydrating its history.
type Factory func(ctx context.Context, key domain.MemoryKey) (*Agent, error)

// Binding owns the single agent of a runtime container. The container is
// routed by session id, so once bound it only ever serves that key.
//
// The zero state is unbound. The first successful Acquire binds it for the
// life of the process; a failed construction leaves it unbound so the next
// request retries.
type Binding struct {
	factory Factory

	mu    sync.Mutex
	key   domain.MemoryKey
	agent *Agent
}

// NewBinding creates an unbound binding that builds agents with factory.
func NewBinding(factory Factory) *Binding {
	return &Binding{factory: factory}
}

// Acquire returns the bound agent, constructing it on first use. A key that
// differs from the bound one fails with domain.ErrBindingMismatch.
func (b *Binding) Acquire(ctx context.Context, key domain.MemoryKey) (*Agent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.agent != nil {
		if b.key != key {
			metrics.SessionBindings.WithLabelValues("mismatch").Inc()
			log.Ctx(ctx).Error().
				Str("bound_session", b.key.SessionID).
				Str("session", key.SessionID).
				Msg("request does not match bound session")
			return nil, domain.ErrBindingMismatch
		}
		metrics.SessionBindings.WithLabelValues("reused").Inc()
		return b.agent, nil
	}

	log.Ctx(ctx).Info().Str("session", key.SessionID).Msg("initializing agent")
	agent, err := b.factory(ctx, key)
	if err != nil {
		metrics.SessionBindings.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrInitialization, err)
	}

	b.key = key
	b.agent = agent
	metrics.SessionBindings.WithLabelValues("created").Inc()
	return agent, nil
}

// Bound reports the bound key, if any.
func (b *Binding) Bound() (domain.MemoryKey, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key, b.agent != nil
}
