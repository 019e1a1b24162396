package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/repository"
)

// SessionManager keeps a conversation's messages in process and in durable
// memory. Writes go to durable memory first so a crash never leaves the local
// copy ahead of what a new container would rehydrate.
type SessionManager struct {
	store repository.Store
	key   domain.MemoryKey

	mu       sync.Mutex
	messages []domain.Message
}

// NewSessionManager loads the key's prior messages from store.
func NewSessionManager(ctx context.Context, store repository.Store, key domain.MemoryKey) (*SessionManager, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	events, err := store.Events(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("rehydrate session: %w", err)
	}

	messages := make([]domain.Message, 0, len(events))
	for _, ev := range events {
		messages = append(messages, ev.Message)
	}

	return &SessionManager{
		store:    store,
		key:      key,
		messages: messages,
	}, nil
}

// Key returns the memory key the session is stored under.
func (s *SessionManager) Key() domain.MemoryKey {
	return s.key
}

// Messages returns a copy of the conversation so far.
func (s *SessionManager) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append persists msgs and then adds them to the local history.
func (s *SessionManager) Append(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := s.store.Append(ctx, s.key, msgs...); err != nil {
		return fmt.Errorf("persist messages: %w", err)
	}

	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
	return nil
}
