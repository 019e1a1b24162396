// Package agentclient invokes the session-bound agent runtime on behalf of the web tier.
package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/metrics"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
)

// Client turns a question into one agent runtime invocation. The runtime
// session id is always the conversation id, so every turn of a conversation
// lands on the same agent container.
type Client struct {
	runtime         Runtime
	agentRuntimeArn string
}

// NewClient creates a client that dispatches through runtime.
func NewClient(runtime Runtime, agentRuntimeArn string) *Client {
	return &Client{runtime: runtime, agentRuntimeArn: agentRuntimeArn}
}

// Invoke asks the agent one question and returns the text of its reply.
func (c *Client) Invoke(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error) {
	switch {
	case userID == "":
		return nil, domain.MissingField("user_id is required")
	case conversationID == "":
		return nil, domain.MissingField("conversation_id is required")
	case question == "":
		return nil, domain.MissingField("question is required")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "agentclient.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	start := time.Now()
	answer, err := c.invoke(ctx, userID, conversationID, question)
	outcome := metrics.Outcome(err)
	metrics.RuntimeInvocations.WithLabelValues(outcome).Inc()
	metrics.RuntimeInvocationLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return answer, nil
}

func (c *Client) invoke(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error) {
	payload, err := json.Marshal(domain.InvocationPayload{
		Input: domain.InvocationInput{UserID: userID, Prompt: question},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req := &domain.RuntimeRequest{
		AgentRuntimeArn:  c.agentRuntimeArn,
		Payload:          payload,
		RuntimeUserID:    userID,
		RuntimeSessionID: conversationID,
		ContentType:      domain.ContentType,
	}
	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("conversation_id", conversationID).
		Msg("invoking agent runtime")

	resp, err := c.runtime.InvokeAgentRuntime(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	log.Ctx(ctx).Info().
		Int("status_code", resp.StatusCode).
		Str("conversation_id", conversationID).
		Msg("agent runtime responded")
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RuntimeInvocationError{StatusCode: resp.StatusCode}
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%w: empty body", domain.ErrDecode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	msg, err := domain.DecodeReply(body)
	if err != nil {
		return nil, err
	}
	text, err := msg.Text()
	if err != nil {
		return nil, err
	}

	return &domain.Answer{Text: text, Sources: []string{}}, nil
}
