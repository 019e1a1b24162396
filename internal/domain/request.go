package domain

import "io"

// InvocationInput is the agent-facing part of an invocation payload.
type InvocationInput struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
}

// InvocationPayload is the JSON body delivered to the agent process.
type InvocationPayload struct {
	Input InvocationInput `json:"input"`
}

// RuntimeRequest is the envelope sent to the agent runtime.
type RuntimeRequest struct {
	AgentRuntimeArn  string `json:"agentRuntimeArn"`
	Payload          []byte `json:"payload"`
	RuntimeUserID    string `json:"runtimeUserId"`
	RuntimeSessionID string `json:"runtimeSessionId"`
	ContentType      string `json:"contentType"`
}

// RuntimeResponse is the raw reply of the agent runtime. Body must be closed by the caller.
type RuntimeResponse struct {
	StatusCode int
	Body       io.ReadCloser
}

// Answer is the decoded result of one invocation.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// AskRequest is the JSON body of the ask API. Question is a pointer so a
// missing field can be told apart from an empty one.
type AskRequest struct {
	Question *string `json:"question"`
}

// AskResponse is returned by the ask API.
type AskResponse struct {
	ConversationID string   `json:"conversationId"`
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
}
