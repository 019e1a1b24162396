package agent

import (
	"context"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// Model produces the next assistant message for a conversation. A reply that
// contains tool use blocks asks the agent to run those tools and call again.
type Model interface {
	Converse(ctx context.Context, system string, history []domain.Message, tools []ToolSpec) (domain.Message, error)
}
