// Package conversation is the web tier's read model of conversations kept in
// the agent's durable memory.
package conversation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/repository"
)

const summaryConcurrency = 4

// Store reads conversations from durable memory. It never writes; the agent
// process is the only writer.
type Store struct {
	memory   repository.Store
	memoryID string
}

// NewStore creates a conversation store over memory.
func NewStore(memory repository.Store, memoryID string) *Store {
	return &Store{memory: memory, memoryID: memoryID}
}

// Get returns the conversation's question and answer pairs in order.
func (s *Store) Get(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	key := domain.MemoryKey{MemoryID: s.memoryID, SessionID: conversationID, ActorID: userID}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	events, err := s.memory.Events(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if len(events) == 0 {
		return nil, domain.ErrConversationNotFound
	}

	return &domain.Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		Questions:      pairQuestions(events),
	}, nil
}

// ListByUser returns the user's most recent conversations, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	sessions, err := s.memory.ListSessions(ctx, s.memoryID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]domain.ConversationSummary, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, sess := range sessions {
		g.Go(func() error {
			key := domain.MemoryKey{MemoryID: s.memoryID, SessionID: sess.SessionID, ActorID: userID}
			events, err := s.memory.Events(gctx, key)
			if err != nil {
				return fmt.Errorf("load conversation %s: %w", sess.SessionID, err)
			}
			summaries[i] = domain.ConversationSummary{
				ConversationID:  sess.SessionID,
				InitialQuestion: initialQuestion(events),
				Created:         sess.CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.ConversationSummary, 0, len(summaries))
	for _, sum := range summaries {
		if sum.InitialQuestion != "" {
			out = append(out, sum)
		}
	}
	return out, nil
}

// pairQuestions matches each user question with the assistant text that
// follows it. Tool traffic is skipped.
func pairQuestions(events []domain.MemoryEvent) []domain.QuestionAnswer {
	questions := []domain.QuestionAnswer{}
	for _, ev := range events {
		msg := ev.Message
		if msg.IsToolMessage() {
			continue
		}
		text, err := msg.Text()
		if err != nil {
			continue
		}

		switch msg.Role {
		case domain.RoleUser:
			questions = append(questions, domain.QuestionAnswer{Question: text, Created: ev.CreatedAt})
		case domain.RoleAssistant:
			if n := len(questions); n > 0 && questions[n-1].Answer == "" {
				questions[n-1].Answer = text
			}
		}
	}
	return questions
}

func initialQuestion(events []domain.MemoryEvent) string {
	for _, ev := range events {
		if ev.Message.Role != domain.RoleUser || ev.Message.IsToolMessage() {
			continue
		}
		if text, err := ev.Message.Text(); err == nil {
			return text
		}
	}
	return ""
}
