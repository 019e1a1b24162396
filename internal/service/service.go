// Package service implements the web tier's use cases on top of the agent
// runtime invoker and the conversation store.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// Invoker runs one question through the agent runtime.
type Invoker interface {
	Invoke(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error)
}

// Conversations reads stored conversations.
type Conversations interface {
	Get(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)
}

type Service struct {
	invoker       Invoker
	conversations Conversations
	historyLimit  int
	newID         func() string
}

func New(invoker Invoker, conversations Conversations, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{
		invoker:       invoker,
		conversations: conversations,
		historyLimit:  historyLimit,
		newID:         uuid.NewString,
	}
}
