package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ContentBlock is one ordered element of a message. Exactly one of TextBlock,
// ToolUseBlock or ToolResultBlock.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock holds plain text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a request from the model to run a tool.
type ToolUseBlock struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// ToolResultBlock carries the outcome of a tool run back to the model.
type ToolResultBlock struct {
	ToolUseID string              `json:"toolUseId"`
	Status    ToolResultStatus    `json:"status"`
	Content   []ToolResultContent `json:"content"`
}

// ToolResultContent is one item of a tool result.
type ToolResultContent struct {
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

func (TextBlock) isContentBlock()       {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}

// Message is one role-tagged turn with ordered content blocks.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// NewTextMessage builds a message holding a single text block.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock{Text: text}}}
}

// Text returns the text of the first content block.
func (m Message) Text() (string, error) {
	if len(m.Content) == 0 {
		return "", fmt.Errorf("%w: message content list is empty", ErrDecode)
	}
	tb, ok := m.Content[0].(TextBlock)
	if !ok {
		return "", fmt.Errorf("%w: first message content item is not text", ErrDecode)
	}
	return tb.Text, nil
}

// IsToolMessage reports whether the message requests a tool or carries a tool result.
func (m Message) IsToolMessage() bool {
	for _, block := range m.Content {
		switch block.(type) {
		case ToolUseBlock, ToolResultBlock:
			return true
		}
	}
	return false
}

// ToolUses returns the tool requests in content order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range m.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

type wireMessage struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
}

type wireText struct {
	Text string `json:"text"`
}

type wireToolUse struct {
	ToolUse ToolUseBlock `json:"toolUse"`
}

type wireToolResult struct {
	ToolResult ToolResultBlock `json:"toolResult"`
}

// MarshalJSON encodes the message in the agent runtime wire format.
func (m Message) MarshalJSON() ([]byte, error) {
	out := wireMessage{Role: m.Role, Content: make([]json.RawMessage, 0, len(m.Content))}
	for i, block := range m.Content {
		var v any
		switch b := block.(type) {
		case TextBlock:
			v = wireText{Text: b.Text}
		case ToolUseBlock:
			if b.Input == nil {
				b.Input = json.RawMessage(`{}`)
			}
			v = wireToolUse{ToolUse: b}
		case ToolResultBlock:
			if b.Content == nil {
				b.Content = []ToolResultContent{}
			}
			v = wireToolResult{ToolResult: b}
		default:
			return nil, fmt.Errorf("content block %d: unsupported type %T", i, block)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire format. Each block is classified by its
// discriminant key; blocks carrying none of the known keys are skipped.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !wm.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrDecode, wm.Role)
	}

	content := make([]ContentBlock, 0, len(wm.Content))
	for i, raw := range wm.Content {
		block, err := decodeBlock(raw)
		if err != nil {
			return fmt.Errorf("%w: content block %d: %v", ErrDecode, i, err)
		}
		if block != nil {
			content = append(content, block)
		}
	}

	m.Role = wm.Role
	m.Content = content
	return nil
}

func decodeBlock(raw json.RawMessage) (ContentBlock, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	var found []string
	for _, key := range []string{"text", "toolUse", "toolResult"} {
		if v, ok := fields[key]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			found = append(found, key)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("ambiguous block with keys %v", found)
	}

	switch found[0] {
	case "text":
		var text string
		if err := json.Unmarshal(fields["text"], &text); err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		return TextBlock{Text: text}, nil
	case "toolUse":
		var tu ToolUseBlock
		if err := json.Unmarshal(fields["toolUse"], &tu); err != nil {
			return nil, fmt.Errorf("toolUse: %w", err)
		}
		if tu.ToolUseID == "" || tu.Name == "" {
			return nil, fmt.Errorf("toolUse: toolUseId and name are required")
		}
		return tu, nil
	default:
		var tr ToolResultBlock
		if err := json.Unmarshal(fields["toolResult"], &tr); err != nil {
			return nil, fmt.Errorf("toolResult: %w", err)
		}
		if tr.ToolUseID == "" {
			return nil, fmt.Errorf("toolResult: toolUseId is required")
		}
		return tr, nil
	}
}

// Reply is the body returned by the agent runtime for one invocation.
type Reply struct {
	Message *Message `json:"message"`
}

// DecodeReply parses a runtime reply body into its message.
func DecodeReply(body []byte) (Message, error) {
	var r Reply
	if err := json.Unmarshal(body, &r); err != nil {
		if errors.Is(err, ErrDecode) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r.Message == nil {
		return Message{}, fmt.Errorf("%w: reply has no message", ErrDecode)
	}
	return *r.Message, nil
}
