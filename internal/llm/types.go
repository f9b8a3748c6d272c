// Package llm provides language-model client implementations.
package llm

import "time"

// Message represents a chat message for the model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"` // Provider-assigned ID (required by Anthropic for tool_result correlation)
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// NewToolCall builds a ToolCall. Mostly useful in tests; the anonymous
// struct field is awkward to populate inline.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	var tc ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

// ChatResponse is the unified response from any model provider.
// Wire format conversion happens at provider boundaries.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}
