package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// Client talks to the web tier's JSON API and remembers the current
// conversation so follow-up questions continue it.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	conversationID string
}

// NewClient creates a client for the web tier at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ConversationID returns the current conversation, empty before the first question.
func (c *Client) ConversationID() string {
	return c.conversationID
}

// Reset makes the next question start a new conversation.
func (c *Client) Reset() {
	c.conversationID = ""
}

// Resume continues an existing conversation.
func (c *Client) Resume(conversationID string) {
	c.conversationID = conversationID
}

// Ask sends a question, starting a conversation on the first call.
func (c *Client) Ask(ctx context.Context, question string) (*domain.AskResponse, error) {
	path := "/api/ask"
	if c.conversationID != "" {
		path += "/" + url.PathEscape(c.conversationID)
	}

	body, err := json.Marshal(domain.AskRequest{Question: &question})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var resp domain.AskResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	c.conversationID = resp.ConversationID
	return &resp, nil
}

// History lists a user's recent conversations.
func (c *Client) History(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	path := "/api/conversations/users/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", domain.ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
