package harnessports

import (
	"context"
	"strings"
)

// Role identifies the author of a message in a model conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// PromptMessage represents a single conversation message sent to the model.
type PromptMessage struct {
	Role    Role
	Content string
	Media   []MediaRef // uploaded files referenced by this message
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System    string            // agent system instruction
	Messages  []PromptMessage   // ordered conversation, oldest first
	Tools     []ToolSpec        // function declarations available to the model
	Grounding bool              // enable the provider's implicit web search grounding
	Meta      map[string]string // lightweight metadata for tracing
}

// Options controls the model and sampling for a single call.
type Options struct {
	Model        string
	MaxNewTokens int
	// Temperature of zero leaves the provider default in place.
	Temperature float32
	// TimeoutMs applies to the provider call only (not the task deadline)
	TimeoutMs int
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Part is one element of a candidate: text, a tool call, or both empty.
type Part struct {
	Text     string
	ToolCall *ToolCall
}

// Candidate is one alternative response from the model.
type Candidate struct {
	Parts []Part
}

// Completion is the provider's response.
type Completion struct {
	Candidates       []Candidate
	GroundingSources []string // raw grounding URIs, unresolved
	Raw              any      // raw provider payload for debugging
	Usage            *Usage
}

// ToolCalls returns every tool call in the completion, scanning all parts of
// all candidates in order.
func (c Completion) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, cand := range c.Candidates {
		for _, p := range cand.Parts {
			if p.ToolCall != nil {
				calls = append(calls, *p.ToolCall)
			}
		}
	}
	return calls
}

// Texts returns the non-empty text parts of the completion in order.
func (c Completion) Texts() []string {
	var out []string
	for _, cand := range c.Candidates {
		for _, p := range cand.Parts {
			if p.Text != "" {
				out = append(out, p.Text)
			}
		}
	}
	return out
}

// Text concatenates all text parts of the completion.
func (c Completion) Text() string {
	return strings.Join(c.Texts(), "")
}

// Provider is the abstraction for the remote generative model.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
