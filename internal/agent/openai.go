package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/config"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// OpenAIModel talks to any OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ Model = (*OpenAIModel)(nil)

// NewOpenAIModel builds the model client from cfg. OpenRouter attribution
// headers are sent when the site settings are present.
func NewOpenAIModel(cfg config.LLMConfig, extra ...option.RequestOption) (*OpenAIModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}
	opts = append(opts, extra...)

	return &OpenAIModel{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxCompletionTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (m *OpenAIModel) Converse(ctx context.Context, system string, history []domain.Message, tools []ToolSpec) (domain.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.model),
		Messages:    toOpenAIMessages(system, history),
		Temperature: openai.Float(m.temperature),
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.maxTokens)
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.InputSchema),
			},
		})
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Message{}, fmt.Errorf("chat completion returned no choices")
	}
	return fromOpenAIMessage(completion.Choices[0].Message), nil
}

// unansweredToolCall answers a stored tool call whose result was never
// recorded. Chat completion endpoints reject a history with open tool calls.
const unansweredToolCall = "Error: tool call was not completed"

func toOpenAIMessages(system string, history []domain.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	var pending []string
	closePending := func() {
		for _, id := range pending {
			out = append(out, openai.ToolMessage(unansweredToolCall, id))
		}
		pending = nil
	}

	for _, msg := range history {
		var texts []string
		var uses []domain.ToolUseBlock
		var results []domain.ToolResultBlock
		for _, block := range msg.Content {
			switch b := block.(type) {
			case domain.TextBlock:
				if b.Text != "" {
					texts = append(texts, b.Text)
				}
			case domain.ToolUseBlock:
				uses = append(uses, b)
			case domain.ToolResultBlock:
				results = append(results, b)
			}
		}
		text := strings.Join(texts, "\n")

		if msg.Role == domain.RoleAssistant {
			closePending()
			if len(uses) == 0 {
				out = append(out, openai.AssistantMessage(text))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				asst.Content.OfString = openai.String(text)
			}
			for _, tu := range uses {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tu.ToolUseID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tu.Name,
						Arguments: string(tu.Input),
					},
				})
				pending = append(pending, tu.ToolUseID)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			continue
		}

		// Tool results must directly follow the assistant message that asked
		// for them. Results without a matching open call are dropped.
		for _, tr := range results {
			i := slices.Index(pending, tr.ToolUseID)
			if i < 0 {
				continue
			}
			pending = slices.Delete(pending, i, i+1)
			out = append(out, openai.ToolMessage(toolResultText(tr), tr.ToolUseID))
		}
		if text != "" {
			closePending()
			out = append(out, openai.UserMessage(text))
		}
	}
	closePending()
	return out
}

func toolResultText(tr domain.ToolResultBlock) string {
	parts := make([]string, 0, len(tr.Content))
	for _, c := range tr.Content {
		switch {
		case c.Text != "":
			parts = append(parts, c.Text)
		case len(c.JSON) > 0:
			parts = append(parts, string(c.JSON))
		}
	}
	text := strings.Join(parts, "\n")
	if tr.Status == domain.ToolResultError {
		text = "Error: " + text
	}
	return text
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) domain.Message {
	out := domain.Message{Role: domain.RoleAssistant}
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		out.Content = append(out.Content, domain.TextBlock{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		out.Content = append(out.Content, domain.ToolUseBlock{
			ToolUseID: tc.ID,
			Name:      tc.Function.Name,
			Input:     toolInput(tc.Function.Arguments),
		})
	}
	return out
}

// toolInput keeps model-provided arguments as JSON. Arguments that do not
// parse are kept as a JSON string so the tool can report the problem.
func toolInput(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
