package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/adapter/agentclient"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/agent"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/conversation"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/service"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/runtime"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/web"
	"github.com/aws-samples/sample-ai-agent-accelerator/tests/helpers"
)

const e2eMemoryID = "mem-e2e"

// newStack wires the web tier to one agent container over HTTP, both sharing
// the same memory.
func newStack(t *testing.T) (http.Handler, *agent.MockModel) {
	t.Helper()
	mem := helpers.NewTestSQLiteStore(t)
	model := agent.NewMockModel()

	binding := agent.NewBinding(agent.NewFactory(mem, model, nil, agent.Options{}))
	container := httptest.NewServer(NewRuntimeServer(runtime.NewHandler(binding, e2eMemoryID)))
	t.Cleanup(container.Close)

	client := agentclient.NewClient(agentclient.NewHTTPRuntime(container.URL, 5*time.Second), "arn:aws:bedrock-agentcore:us-east-1:123456789012:runtime/test")
	svc := service.New(client, conversation.NewStore(mem, e2eMemoryID), 10)
	templates := web.MustTemplates()
	return NewWebServer(web.NewHandler(svc, templates, web.Identity{}, ""), templates), model
}

func askJSON(t *testing.T, h http.Handler, path, question string) (*httptest.ResponseRecorder, domain.AskResponse) {
	t.Helper()
	body, err := json.Marshal(domain.AskRequest{Question: &question})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp domain.AskResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestEndToEndConversation(t *testing.T) {
	h, model := newStack(t)

	rec, first := askJSON(t, h, "/api/ask", "What is your return policy?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, first.ConversationID)
	assert.Equal(t, "[MOCK] What is your return policy?", first.Answer)
	assert.Equal(t, []string{}, first.Sources)

	rec, second := askJSON(t, h, "/api/ask/"+first.ConversationID, "And for electronics?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The second turn saw the first one.
	calls := model.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1], 3)

	page := httptest.NewRecorder()
	h.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/conversation/"+first.ConversationID, nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "What is your return policy?")
	assert.Contains(t, page.Body.String(), "And for electronics?")

	history := httptest.NewRecorder()
	h.ServeHTTP(history, httptest.NewRequest(http.MethodGet, "/api/conversations/users/"+web.ActorID("anonymous-user"), nil))
	require.Equal(t, http.StatusOK, history.Code)
	var summaries []domain.ConversationSummary
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "What is your return policy?", summaries[0].InitialQuestion)
}

func TestEndToEndSecondSessionRejectedByBoundContainer(t *testing.T) {
	h, _ := newStack(t)

	rec, _ := askJSON(t, h, "/api/ask", "first")
	require.Equal(t, http.StatusOK, rec.Code)

	// One container serves one session; a new conversation routed to the
	// same container surfaces as a server error.
	rec, _ = askJSON(t, h, "/api/ask", "second")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEndToEndSharesOneTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	h, _ := newStack(t)
	rec, _ := askJSON(t, h, "/api/ask", "What is your return policy?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	spans := recorder.Ended()
	var servers int
	traces := map[trace.TraceID]bool{}
	for _, s := range spans {
		traces[s.SpanContext().TraceID()] = true
		if s.SpanKind() == trace.SpanKindServer {
			servers++
		}
	}
	assert.Equal(t, 2, servers, "web and agent server spans")
	assert.Len(t, traces, 1)
}
