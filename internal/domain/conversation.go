package domain

import (
	"fmt"
	"time"
)

// Conversation is the canonical record of one user's conversation.
type Conversation struct {
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	Questions      []QuestionAnswer `json:"questions"`
}

// QuestionAnswer is one user question and the agent's reply.
type QuestionAnswer struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Created  time.Time `json:"created"`
}

// ConversationSummary is one row of a user's conversation history.
type ConversationSummary struct {
	ConversationID  string    `json:"conversationId"`
	InitialQuestion string    `json:"initial_question"`
	Created         time.Time `json:"created"`
}

// DisplayTime formats t the way the history list shows it, e.g. "3/7/2025 4:05 PM".
func DisplayTime(t time.Time) string {
	local := t.Local()
	return fmt.Sprintf("%d/%d/%d %s", local.Month(), local.Day(), local.Year(), local.Format("3:04 PM"))
}
