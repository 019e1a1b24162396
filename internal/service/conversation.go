package service

import (
	"context"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// Conversation returns one of the user's conversations.
func (s *Service) Conversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, domain.MissingField("conversation id is required")
	}
	return s.conversations.Get(ctx, conversationID, userID)
}

// History lists the user's most recent conversations, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	if userID == "" {
		return nil, domain.MissingField("user id is required")
	}
	return s.conversations.ListByUser(ctx, userID, s.historyLimit)
}
