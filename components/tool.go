package components

import (
	"github.com/google/uuid"

	"github.com/bububa/atomic-orchestrator/schema"
)

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// NewToolCall returns a ToolCall. A call id is generated when id is empty.
func NewToolCall(id string, name string, arguments string) ToolCall {
	if id == "" {
		id = NewToolCallID()
	}
	return ToolCall{
		ID:        id,
		Name:      name,
		Arguments: arguments,
	}
}

// NewToolCallID returns a random tool call id
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// ToolCallback is the result of a ToolCall fed back to the model
type ToolCallback struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec describes a callable tool to the model
type ToolSpec struct {
	Name        string
	Description string
	InputSchema *schema.Definition
}
