package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult is what a tool hands back to the model. Failures are carried as
// text with IsError set so the conversation can continue.
type ToolResult struct {
	Text        string
	Attachments []MediaRef
	IsError     bool
}

// Tool defines the runtime that executes a tool call on behalf of a task.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, scope *TaskScope, args json.RawMessage) (ToolResult, error)
}

// SpecOf builds the declaration the model sees for a tool.
func SpecOf(t Tool) ToolSpec {
	return ToolSpec{Name: t.Name(), Description: t.Description(), JSONSchema: t.Schema()}
}
