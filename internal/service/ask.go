package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// AskResult is the outcome of one question.
type AskResult struct {
	Answer       string
	Conversation *domain.Conversation
	Sources      []string
	// IsNew is set when the question started a new conversation.
	IsNew bool
}

// Ask sends question to the agent in conversationID, starting a new
// conversation when the id is empty, and returns the conversation as stored
// after the turn.
func (s *Service) Ask(ctx context.Context, userID, conversationID, question string) (*AskResult, error) {
	if question == "" {
		return nil, domain.MissingField("question is required")
	}

	isNew := conversationID == ""
	if isNew {
		conversationID = s.newID()
	}
	log.Ctx(ctx).Info().
		Str("conversation_id", conversationID).
		Bool("new", isNew).
		Msg("asking agent")

	answer, err := s.invoker.Invoke(ctx, userID, conversationID, question)
	if err != nil {
		return nil, fmt.Errorf("invoke agent: %w", err)
	}

	// The agent wrote the turn to memory before replying, so re-reading gives
	// the canonical conversation including this answer.
	conv, err := s.conversations.Get(ctx, conversationID, userID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		log.Ctx(ctx).Warn().Str("conversation_id", conversationID).Msg("turn not yet visible in memory")
		conv = &domain.Conversation{
			ConversationID: conversationID,
			UserID:         userID,
			Questions: []domain.QuestionAnswer{
				{Question: question, Answer: answer.Text, Created: time.Now()},
			},
		}
	} else if err != nil {
		return nil, err
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	return &AskResult{
		Answer:       answer.Text,
		Conversation: conv,
		Sources:      sources,
		IsNew:        isNew,
	}, nil
}

// Continue asks a follow-up question in an existing conversation. It fails
// with domain.ErrConversationNotFound when the user has no such conversation.
func (s *Service) Continue(ctx context.Context, userID, conversationID, question string) (*AskResult, error) {
	if conversationID == "" {
		return nil, domain.MissingField("conversation id is required")
	}
	if question == "" {
		return nil, domain.MissingField("question is required")
	}
	if _, err := s.conversations.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.Ask(ctx, userID, conversationID, question)
}
