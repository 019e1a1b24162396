package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"
	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
)

const (
	agentCorePageSize = 100
	agentCoreMaxPages = 50
	memoryMaxAttempts = 10
)

// AgentCoreAPI is the subset of the Bedrock AgentCore data plane used for memory.
type AgentCoreAPI interface {
	CreateEvent(ctx context.Context, params *bedrockagentcore.CreateEventInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error)
	ListEvents(ctx context.Context, params *bedrockagentcore.ListEventsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListEventsOutput, error)
	ListSessions(ctx context.Context, params *bedrockagentcore.ListSessionsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListSessionsOutput, error)
}

// AgentCoreStore implements Store on Bedrock AgentCore Memory. Every message
// becomes one conversational event whose text is the JSON-encoded message.
type AgentCoreStore struct {
	api AgentCoreAPI

	mu     sync.Mutex
	lastTS time.Time
	now    func() time.Time
}

var _ Store = (*AgentCoreStore)(nil)

// NewAgentCoreStore wraps an AgentCore client.
func NewAgentCoreStore(api AgentCoreAPI) *AgentCoreStore {
	return &AgentCoreStore{api: api, now: time.Now}
}

// NewAgentCoreStoreFromConfig loads AWS credentials from the default chain and
// retries throttled memory calls adaptively.
func NewAgentCoreStoreFromConfig(ctx context.Context, region string) (*AgentCoreStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryModeAdaptive),
		awsconfig.WithRetryMaxAttempts(memoryMaxAttempts),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	telemetry.InstrumentAWS(&awsCfg)
	return NewAgentCoreStore(bedrockagentcore.NewFromConfig(awsCfg)), nil
}

// nextTimestamp hands out strictly increasing millisecond timestamps so that
// events keep their append order when sorted.
func (s *AgentCoreStore) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC().Truncate(time.Millisecond)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Millisecond)
	}
	s.lastTS = ts
	return ts
}

// Append creates one event per message.
func (s *AgentCoreStore) Append(ctx context.Context, key domain.MemoryKey, msgs ...domain.Message) error {
	if err := key.Validate(); err != nil {
		return err
	}
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		_, err = s.api.CreateEvent(ctx, &bedrockagentcore.CreateEventInput{
			MemoryId:       aws.String(key.MemoryID),
			ActorId:        aws.String(key.ActorID),
			SessionId:      aws.String(key.SessionID),
			EventTimestamp: aws.Time(s.nextTimestamp()),
			Payload: []types.PayloadType{
				&types.PayloadTypeMemberConversational{
					Value: types.Conversational{
						Role:    toAgentCoreRole(msg.Role),
						Content: &types.ContentMemberText{Value: string(raw)},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("agentcore create event: %w", err)
		}
	}
	return nil
}

// Events pages through the session's events and orders them by timestamp.
func (s *AgentCoreStore) Events(ctx context.Context, key domain.MemoryKey) ([]domain.MemoryEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	events := []domain.MemoryEvent{}
	var token *string
	for page := 0; page < agentCoreMaxPages; page++ {
		out, err := s.api.ListEvents(ctx, &bedrockagentcore.ListEventsInput{
			MemoryId:        aws.String(key.MemoryID),
			ActorId:         aws.String(key.ActorID),
			SessionId:       aws.String(key.SessionID),
			IncludePayloads: aws.Bool(true),
			MaxResults:      aws.Int32(agentCorePageSize),
			NextToken:       token,
		})
		if err != nil {
			return nil, fmt.Errorf("agentcore list events: %w", err)
		}
		for _, ev := range out.Events {
			events = append(events, decodeAgentCoreEvent(key, ev)...)
		}
		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// ListSessions pages through the actor's sessions and returns the newest ones.
func (s *AgentCoreStore) ListSessions(ctx context.Context, memoryID, actorID string, limit int) ([]domain.SessionSummary, error) {
	if err := validateActor(memoryID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.SessionSummary{}, nil
	}

	sessions := []domain.SessionSummary{}
	var token *string
	for page := 0; page < agentCoreMaxPages; page++ {
		out, err := s.api.ListSessions(ctx, &bedrockagentcore.ListSessionsInput{
			MemoryId:   aws.String(memoryID),
			ActorId:    aws.String(actorID),
			MaxResults: aws.Int32(agentCorePageSize),
			NextToken:  token,
		})
		if err != nil {
			return nil, fmt.Errorf("agentcore list sessions: %w", err)
		}
		for _, summary := range out.SessionSummaries {
			sessions = append(sessions, domain.SessionSummary{
				SessionID: aws.ToString(summary.SessionId),
				ActorID:   aws.ToString(summary.ActorId),
				CreatedAt: aws.ToTime(summary.CreatedAt),
			})
		}
		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *AgentCoreStore) Close() error {
	return nil
}

func decodeAgentCoreEvent(key domain.MemoryKey, ev types.Event) []domain.MemoryEvent {
	var out []domain.MemoryEvent
	for _, payload := range ev.Payload {
		conv, ok := payload.(*types.PayloadTypeMemberConversational)
		if !ok {
			continue
		}
		text, ok := conv.Value.Content.(*types.ContentMemberText)
		if !ok {
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal([]byte(text.Value), &msg); err != nil {
			// Events written by other producers carry plain text.
			log.Debug().Str("event_id", aws.ToString(ev.EventId)).Msg("conversational event is not a serialized message")
			msg = domain.NewTextMessage(fromAgentCoreRole(conv.Value.Role), text.Value)
		}
		out = append(out, domain.MemoryEvent{
			EventID:   aws.ToString(ev.EventId),
			Key:       key,
			Message:   msg,
			CreatedAt: aws.ToTime(ev.EventTimestamp),
		})
	}
	return out
}

func toAgentCoreRole(r domain.Role) types.Role {
	switch r {
	case domain.RoleAssistant:
		return types.RoleAssistant
	case domain.RoleTool:
		return types.RoleTool
	default:
		return types.RoleUser
	}
}

func fromAgentCoreRole(r types.Role) domain.Role {
	switch r {
	case types.RoleAssistant:
		return domain.RoleAssistant
	case types.RoleTool:
		return domain.RoleTool
	default:
		return domain.RoleUser
	}
}
