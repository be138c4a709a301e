package chat

import "encoding/json"

// Conversation roles. The transcript is an ordered, append-only
// sequence of turns; ordering is chronological and significant.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one message in the conversation transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls holds structured tool invocations requested by an
	// assistant turn, in the order the model emitted them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Name identifies the tool that produced a tool-role turn.
	Name string `json:"name,omitempty"`
}

// ToolCall is a concrete request to invoke a tool. The nesting matches
// the Ollama/Chat Completions wire shape.
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and its arguments. Arguments arrive
// as a JSON object, not an encoded string.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSpec is a tool definition in the shape the model backend consumes.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes one callable function.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}
