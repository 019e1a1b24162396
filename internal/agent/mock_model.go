package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// MockModel is a Model for tests and local runs without a model endpoint.
// Scripted replies are returned in order; once they run out it echoes the
// last user text.
type MockModel struct {
	mu      sync.Mutex
	replies []domain.Message
	err     error
	calls   [][]domain.Message
}

var _ Model = (*MockModel)(nil)

// NewMockModel creates a mock that returns replies in order.
func NewMockModel(replies ...domain.Message) *MockModel {
	return &MockModel{replies: replies}
}

// FailWith makes every later call return err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the history passed to each call.
func (m *MockModel) Calls() [][]domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]domain.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockModel) Converse(ctx context.Context, system string, history []domain.Message, tools []ToolSpec) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	default:
	}

	m.calls = append(m.calls, history)
	if m.err != nil {
		return domain.Message{}, m.err
	}
	if len(m.replies) > 0 {
		reply := m.replies[0]
		m.replies = m.replies[1:]
		return reply, nil
	}
	return domain.NewTextMessage(domain.RoleAssistant, fmt.Sprintf("[MOCK] %s", lastUserText(history))), nil
}

func lastUserText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleUser || history[i].IsToolMessage() {
			continue
		}
		if text, err := history[i].Text(); err == nil {
			return text
		}
	}
	return ""
}
