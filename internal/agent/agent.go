// Package agent implements the session-bound conversational agent hosted by
// the runtime container: a model, its tools and the session's memory.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/metrics"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/repository"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
)

// DefaultSystemPrompt instructs the model to answer from the knowledge base only.
const DefaultSystemPrompt = `Your name as the AI is "AI Chatbot" and you have been created by AnyCompany as an expert in their business.
Use only the knowledge base tool when answering the user's questions.
If the knowledge base does not provide information about a question, you should say you do not know the answer.
You should try to completely avoid outputting bulleted lists and sub lists, unless it's absolutely necessary.`

const (
	defaultMaxToolRounds = 8
	defaultToolTimeout   = 30 * time.Second
)

// ErrToolRoundsExceeded is returned when the model keeps asking for tools.
var ErrToolRoundsExceeded = errors.New("too many tool rounds")

// Options tunes an Agent.
type Options struct {
	SystemPrompt  string
	MaxToolRounds int
	// ToolTimeout bounds a single tool call.
	ToolTimeout time.Duration
}

// Agent runs conversation turns for one session. Turns are serialized.
type Agent struct {
	model   Model
	tools   *Registry
	session *SessionManager
	opts    Options

	mu sync.Mutex
}

// New creates an agent over an already rehydrated session.
func New(model Model, tools *Registry, session *SessionManager, opts Options) *Agent {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaultToolTimeout
	}
	return &Agent{model: model, tools: tools, session: session, opts: opts}
}

// NewFactory returns a Factory that rehydrates the session from store and
// wires model and tools into a new agent.
func NewFactory(store repository.Store, model Model, tools *Registry, opts Options) Factory {
	return func(ctx context.Context, key domain.MemoryKey) (*Agent, error) {
		session, err := NewSessionManager(ctx, store, key)
		if err != nil {
			return nil, err
		}
		log.Ctx(ctx).Info().
			Str("session", key.SessionID).
			Int("messages", len(session.Messages())).
			Msg("session rehydrated")
		return New(model, tools, session, opts), nil
	}
}

// Session returns the agent's session manager.
func (a *Agent) Session() *SessionManager {
	return a.session
}

// Invoke runs one turn for prompt and returns the final assistant message.
// Every message produced along the way is appended to the session.
func (a *Agent) Invoke(ctx context.Context, prompt string) (domain.Message, error) {
	if prompt == "" {
		return domain.Message{}, domain.MissingField("prompt is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "agent.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", a.session.Key().SessionID))

	reply, err := a.turn(ctx, prompt)
	metrics.AgentTurns.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Message{}, err
	}
	return reply, nil
}

func (a *Agent) turn(ctx context.Context, prompt string) (domain.Message, error) {
	if err := a.session.Append(ctx, domain.NewTextMessage(domain.RoleUser, prompt)); err != nil {
		return domain.Message{}, err
	}

	specs := a.tools.Specs()
	for round := 0; ; round++ {
		reply, err := a.model.Converse(ctx, a.opts.SystemPrompt, a.session.Messages(), specs)
		if err != nil {
			return domain.Message{}, err
		}
		reply.Role = domain.RoleAssistant

		uses := reply.ToolUses()
		if len(uses) == 0 {
			if err := a.session.Append(ctx, reply); err != nil {
				return domain.Message{}, err
			}
			return reply, nil
		}

		// A tool use is only stored together with its results.
		if round >= a.opts.MaxToolRounds {
			aborted := abortedResults(uses, "tool round limit reached")
			if err := a.session.Append(ctx, reply, aborted); err != nil {
				return domain.Message{}, err
			}
			return domain.Message{}, fmt.Errorf("%w: limit is %d", ErrToolRoundsExceeded, a.opts.MaxToolRounds)
		}

		results := a.runTools(ctx, uses)
		if err := a.session.Append(ctx, reply, results); err != nil {
			return domain.Message{}, err
		}
	}
}

func abortedResults(uses []domain.ToolUseBlock, reason string) domain.Message {
	msg := domain.Message{Role: domain.RoleUser}
	for _, use := range uses {
		msg.Content = append(msg.Content, domain.ToolResultBlock{
			ToolUseID: use.ToolUseID,
			Status:    domain.ToolResultError,
			Content:   []domain.ToolResultContent{{Text: reason}},
		})
	}
	return msg
}

// runTools executes the requested tools in order. Tool failures are reported
// back to the model as error results rather than failing the turn.
func (a *Agent) runTools(ctx context.Context, uses []domain.ToolUseBlock) domain.Message {
	msg := domain.Message{Role: domain.RoleUser}
	for _, use := range uses {
		input := use.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}

		content, err := a.callTool(ctx, use.Name, input)
		status := domain.ToolResultSuccess
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("tool", use.Name).Msg("tool call failed")
			status = domain.ToolResultError
			content = []domain.ToolResultContent{{Text: err.Error()}}
		}
		if content == nil {
			content = []domain.ToolResultContent{}
		}
		metrics.ToolCalls.WithLabelValues(use.Name, string(status)).Inc()

		msg.Content = append(msg.Content, domain.ToolResultBlock{
			ToolUseID: use.ToolUseID,
			Status:    status,
			Content:   content,
		})
	}
	return msg
}

func (a *Agent) callTool(ctx context.Context, name string, input json.RawMessage) ([]domain.ToolResultContent, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.ToolTimeout)
	defer cancel()

	content, err := a.tools.Execute(callCtx, name, input)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("tool call timed out after %s", a.opts.ToolTimeout)
	}
	return content, err
}
