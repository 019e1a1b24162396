package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/config"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

func newCompletionServer(t *testing.T, response string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)
	return server
}

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:             baseURL,
		APIKey:              "sk-test",
		Model:               "test-model",
		MaxCompletionTokens: 256,
		Temperature:         0.2,
		Timeout:             5 * time.Second,
	}
}

func TestOpenAIModelToolCall(t *testing.T) {
	var body map[string]any
	server := newCompletionServer(t, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
		"choices": [{
			"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "retrieve", "arguments": "{\"text\":\"returns\"}"}}
			]}
		}]
	}`, &body)

	model, err := NewOpenAIModel(testLLMConfig(server.URL))
	require.NoError(t, err)

	history := []domain.Message{domain.NewTextMessage(domain.RoleUser, "What is your return policy?")}
	reply, err := model.Converse(context.Background(), "be helpful", history, []ToolSpec{NewRetrieveTool(nil, "KB").Spec()})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAssistant, reply.Role)
	uses := reply.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "call_1", uses[0].ToolUseID)
	assert.Equal(t, "retrieve", uses[0].Name)
	assert.JSONEq(t, `{"text":"returns"}`, string(uses[0].Input))

	assert.Equal(t, "test-model", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "retrieve", fn["name"])
}

func TestOpenAIModelTextReply(t *testing.T) {
	var body map[string]any
	server := newCompletionServer(t, `{
		"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "test-model",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Within 30 days."}}]
	}`, &body)

	model, err := NewOpenAIModel(testLLMConfig(server.URL))
	require.NoError(t, err)

	history := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, "What is your return policy?"),
		{Role: domain.RoleAssistant, Content: []domain.ContentBlock{
			domain.ToolUseBlock{ToolUseID: "call_1", Name: "retrieve", Input: json.RawMessage(`{"text":"returns"}`)},
		}},
		{Role: domain.RoleUser, Content: []domain.ContentBlock{
			domain.ToolResultBlock{ToolUseID: "call_1", Status: domain.ToolResultSuccess, Content: []domain.ToolResultContent{{Text: "30 days"}}},
		}},
	}
	reply, err := model.Converse(context.Background(), "", history, nil)
	require.NoError(t, err)

	text, err := reply.Text()
	require.NoError(t, err)
	assert.Equal(t, "Within 30 days.", text)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	assert.Len(t, assistant["tool_calls"], 1)
	tool := msgs[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
}

func TestNewOpenAIModelRequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenAIModel(config.LLMConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAIModel(config.LLMConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestToolInputFallback(t *testing.T) {
	assert.Equal(t, "{}", string(toolInput("")))
	assert.Equal(t, `"not json"`, string(toolInput("not json")))
}

func describeMessages(msgs []openai.ChatCompletionMessageParamUnion) []string {
	var out []string
	for _, m := range msgs {
		switch {
		case m.OfSystem != nil:
			out = append(out, "system")
		case m.OfUser != nil:
			out = append(out, "user")
		case m.OfAssistant != nil:
			out = append(out, fmt.Sprintf("assistant(%d)", len(m.OfAssistant.ToolCalls)))
		case m.OfTool != nil:
			out = append(out, "tool:"+m.OfTool.ToolCallID)
		}
	}
	return out
}

func TestToOpenAIMessagesAnswersOpenToolCalls(t *testing.T) {
	history := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, "first"),
		toolUseReply("tu-1", "retrieve", `{}`),
		domain.NewTextMessage(domain.RoleUser, "second"),
		{Role: domain.RoleUser, Content: []domain.ContentBlock{
			domain.ToolResultBlock{ToolUseID: "stray", Status: domain.ToolResultSuccess},
		}},
		domain.NewTextMessage(domain.RoleAssistant, "done"),
	}

	got := describeMessages(toOpenAIMessages("sys", history))
	assert.Equal(t, []string{"system", "user", "assistant(1)", "tool:tu-1", "user", "assistant(0)"}, got)
}

func TestToOpenAIMessagesKeepsRecordedResults(t *testing.T) {
	history := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, "q"),
		toolUseReply("tu-1", "retrieve", `{}`),
		{Role: domain.RoleUser, Content: []domain.ContentBlock{
			domain.ToolResultBlock{ToolUseID: "tu-1", Status: domain.ToolResultSuccess, Content: []domain.ToolResultContent{{Text: "kb"}}},
		}},
		domain.NewTextMessage(domain.RoleAssistant, "answer"),
	}

	msgs := toOpenAIMessages("", history)
	assert.Equal(t, []string{"user", "assistant(1)", "tool:tu-1", "assistant(0)"}, describeMessages(msgs))
	assert.Equal(t, "kb", msgs[2].OfTool.Content.OfString.Value)
}
