package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

const testArn = "arn:aws:bedrock-agentcore:us-east-1:123456789012:runtime/agent-abc"

// fakeRuntime records every envelope and answers with a canned reply.
type fakeRuntime struct {
	mu       sync.Mutex
	requests []*domain.RuntimeRequest
	status   int
	body     string
	err      error
	closed   int
}

func (f *fakeRuntime) InvokeAgentRuntime(_ context.Context, req *domain.RuntimeRequest) (*domain.RuntimeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RuntimeResponse{
		StatusCode: f.status,
		Body:       &trackingBody{Reader: strings.NewReader(f.body), onClose: func() { f.closed++ }},
	}, nil
}

type trackingBody struct {
	io.Reader
	onClose func()
}

func (b *trackingBody) Close() error {
	b.onClose()
	return nil
}

func replyBody(t *testing.T, msg domain.Message) string {
	t.Helper()
	raw, err := json.Marshal(domain.Reply{Message: &msg})
	require.NoError(t, err)
	return string(raw)
}

func TestInvokeReturnsFirstTextBlock(t *testing.T) {
	msg := domain.Message{
		Role: domain.RoleAssistant,
		Content: []domain.ContentBlock{
			domain.TextBlock{Text: "Returns are accepted within 30 days."},
			domain.TextBlock{Text: "ignored"},
		},
	}
	rt := &fakeRuntime{status: http.StatusOK, body: replyBody(t, msg)}
	client := NewClient(rt, testArn)

	answer, err := client.Invoke(context.Background(), "dXNlcg", "conv-1", "What is your return policy?")
	require.NoError(t, err)
	assert.Equal(t, "Returns are accepted within 30 days.", answer.Text)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 1, rt.closed)
}

func TestInvokeBuildsEnvelope(t *testing.T) {
	rt := &fakeRuntime{status: http.StatusOK, body: replyBody(t, domain.NewTextMessage(domain.RoleAssistant, "ok"))}
	client := NewClient(rt, testArn)

	_, err := client.Invoke(context.Background(), "dXNlcg", "conv-1", "hello")
	require.NoError(t, err)

	require.Len(t, rt.requests, 1)
	req := rt.requests[0]
	assert.Equal(t, testArn, req.AgentRuntimeArn)
	assert.Equal(t, "dXNlcg", req.RuntimeUserID)
	assert.Equal(t, "conv-1", req.RuntimeSessionID)
	assert.Equal(t, "application/json", req.ContentType)
	assert.JSONEq(t, `{"input":{"user_id":"dXNlcg","prompt":"hello"}}`, string(req.Payload))
}

func TestInvokeNonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError, http.StatusAccepted} {
		// a valid body must not be decoded
		rt := &fakeRuntime{status: status, body: replyBody(t, domain.NewTextMessage(domain.RoleAssistant, "ok"))}
		client := NewClient(rt, testArn)

		answer, err := client.Invoke(context.Background(), "u", "c", "q")
		assert.Nil(t, answer)
		require.Error(t, err)

		var rie *domain.RuntimeInvocationError
		require.True(t, errors.As(err, &rie), "status %d", status)
		assert.Equal(t, status, rie.StatusCode)
		assert.ErrorIs(t, err, domain.ErrRuntimeInvocation)
	}
}

func TestInvokeDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"not json":          `<html>`,
		"no message":        `{"result":"x"}`,
		"empty content":     `{"message":{"role":"assistant","content":[]}}`,
		"first is tool use": `{"message":{"role":"assistant","content":[{"toolUse":{"toolUseId":"t1","name":"retrieve","input":{}}},{"text":"x"}]}}`,
		"ambiguous block":   `{"message":{"role":"assistant","content":[{"text":"a","toolUse":{"toolUseId":"t1","name":"n","input":{}}}]}}`,
		"bad role":          `{"message":{"role":"robot","content":[{"text":"x"}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := NewClient(&fakeRuntime{status: http.StatusOK, body: body}, testArn)
			_, err := client.Invoke(context.Background(), "u", "c", "q")
			assert.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestInvokeValidatesInput(t *testing.T) {
	rt := &fakeRuntime{status: http.StatusOK}
	client := NewClient(rt, testArn)

	cases := []struct {
		user, conv, question, field string
	}{
		{"", "c", "q", "user_id"},
		{"u", "", "q", "conversation_id"},
		{"u", "c", "", "question"},
	}
	for _, tc := range cases {
		_, err := client.Invoke(context.Background(), tc.user, tc.conv, tc.question)
		assert.ErrorIs(t, err, domain.ErrInputValidation)
		assert.Contains(t, err.Error(), tc.field)
	}
	assert.Empty(t, rt.requests)
}

func TestInvokeTransportError(t *testing.T) {
	client := NewClient(&fakeRuntime{err: errors.New("connection reset")}, testArn)
	_, err := client.Invoke(context.Background(), "u", "c", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSessionContinuityAcrossTurns(t *testing.T) {
	rt := &fakeRuntime{status: http.StatusOK, body: replyBody(t, domain.NewTextMessage(domain.RoleAssistant, "ok"))}
	client := NewClient(rt, testArn)
	ctx := context.Background()

	_, err := client.Invoke(ctx, "u", "conv-A", "What is your return policy?")
	require.NoError(t, err)
	_, err = client.Invoke(ctx, "u", "conv-A", "And for electronics?")
	require.NoError(t, err)

	require.Len(t, rt.requests, 2)
	assert.Equal(t, rt.requests[0].RuntimeSessionID, rt.requests[1].RuntimeSessionID)
	assert.Equal(t, rt.requests[0].RuntimeUserID, rt.requests[1].RuntimeUserID)
}

func TestHTTPRuntimeSendsHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotPayload domain.InvocationPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invocations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":[{"text":"hi"}]}}`)
	}))
	defer server.Close()

	client := NewClient(NewHTTPRuntime(server.URL+"/", time.Second), testArn)
	answer, err := client.Invoke(context.Background(), "dXNlcg", "conv-9", "hello")
	require.NoError(t, err)

	assert.Equal(t, "hi", answer.Text)
	assert.Equal(t, "conv-9", gotHeaders.Get(domain.SessionIDHeader))
	assert.Equal(t, "dXNlcg", gotHeaders.Get(domain.UserIDHeader))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "hello", gotPayload.Input.Prompt)
	assert.Equal(t, "dXNlcg", gotPayload.Input.UserID)
}

func TestHTTPRuntimeSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"session binding mismatch"}`)
	}))
	defer server.Close()

	client := NewClient(NewHTTPRuntime(server.URL, time.Second), testArn)
	_, err := client.Invoke(context.Background(), "u", "c", "q")

	var rie *domain.RuntimeInvocationError
	require.ErrorAs(t, err, &rie)
	assert.Equal(t, http.StatusConflict, rie.StatusCode)
}

func TestHTTPRuntimePropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":[{"text":"hi"}]}}`)
	}))
	defer server.Close()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	client := NewClient(NewHTTPRuntime(server.URL, time.Second), testArn)
	_, err = client.Invoke(ctx, "u", "c", "q")
	require.NoError(t, err)
	assert.Contains(t, traceparent, traceID.String())
}

type fakeAgentCoreAPI struct {
	in  *bedrockagentcore.InvokeAgentRuntimeInput
	out *bedrockagentcore.InvokeAgentRuntimeOutput
}

func (f *fakeAgentCoreAPI) InvokeAgentRuntime(_ context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error) {
	f.in = in
	return f.out, nil
}

func TestAgentCoreRuntimeMapsEnvelope(t *testing.T) {
	api := &fakeAgentCoreAPI{out: &bedrockagentcore.InvokeAgentRuntimeOutput{
		StatusCode: aws.Int32(http.StatusOK),
		Response:   io.NopCloser(strings.NewReader(`{"message":{"role":"assistant","content":[{"text":"from agentcore"}]}}`)),
	}}
	client := NewClient(NewAgentCoreRuntime(api), testArn)

	answer, err := client.Invoke(context.Background(), "dXNlcg", "conv-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "from agentcore", answer.Text)

	assert.Equal(t, testArn, aws.ToString(api.in.AgentRuntimeArn))
	assert.Equal(t, "conv-1", aws.ToString(api.in.RuntimeSessionId))
	assert.Equal(t, "dXNlcg", aws.ToString(api.in.RuntimeUserId))
	assert.Equal(t, "application/json", aws.ToString(api.in.ContentType))
}

func TestAgentCoreRuntimeRejectsMissingStatus(t *testing.T) {
	closed := false
	body := &trackingBody{Reader: strings.NewReader(`{"message":{"role":"assistant","content":[{"text":"hi"}]}}`), onClose: func() { closed = true }}
	api := &fakeAgentCoreAPI{out: &bedrockagentcore.InvokeAgentRuntimeOutput{Response: body}}
	client := NewClient(NewAgentCoreRuntime(api), testArn)

	_, err := client.Invoke(context.Background(), "u", "c", "q")
	require.ErrorIs(t, err, domain.ErrRuntimeInvocation)
	assert.True(t, closed)
}
