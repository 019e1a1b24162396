// Package domain defines the core domain models for the chat accelerator.
package domain

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolResultStatus represents the outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ContentType is the only payload encoding the agent runtime accepts.
const ContentType = "application/json"

// SessionIDHeader carries the runtime session id on every invocation.
const SessionIDHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

// UserIDHeader carries the runtime user id on direct HTTP invocations.
const UserIDHeader = "X-Amzn-Bedrock-AgentCore-Runtime-User-Id"
