package domain

import (
	"fmt"
	"time"
)

// MemoryKey locates a conversation's history in durable memory. It must stay
// the same for every turn of a conversation or earlier turns become unreachable.
type MemoryKey struct {
	MemoryID  string `json:"memory_id"`
	SessionID string `json:"session_id"`
	ActorID   string `json:"actor_id"`
}

// Validate checks that every component is present.
func (k MemoryKey) Validate() error {
	switch {
	case k.MemoryID == "":
		return MissingField("memory id is required")
	case k.SessionID == "":
		return MissingField("session id is required")
	case k.ActorID == "":
		return MissingField("actor id is required")
	}
	return nil
}

func (k MemoryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.MemoryID, k.ActorID, k.SessionID)
}

// MemoryEvent is one message persisted in durable memory.
type MemoryEvent struct {
	EventID   string    `json:"event_id"`
	Key       MemoryKey `json:"key"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary describes one session of an actor in durable memory.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}
