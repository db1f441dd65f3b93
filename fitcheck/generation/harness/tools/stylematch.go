package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// StyleMatchTool runs the style match agent in its own bounded loop with
// the search tool, and returns the text it produced across every iteration.
type StyleMatchTool struct {
	runner Runner
	agent  harness.AgentSpec
	policy *harness.Policy
	search ports.Tool
	logger zerolog.Logger
}

func NewStyleMatchTool(runner Runner, agent harness.AgentSpec, policy *harness.Policy, search ports.Tool, logger zerolog.Logger) *StyleMatchTool {
	return &StyleMatchTool{runner: runner, agent: agent, policy: policy, search: search, logger: logger}
}

func (t *StyleMatchTool) Name() string { return harness.AgentStyleMatch }

func (t *StyleMatchTool) Description() string {
	return "Interprets the user's desired aesthetic or vibe, compares it to online inspiration, and aligns it with the user's closet."
}

func (t *StyleMatchTool) Schema() []byte {
	return instructionSchema("User's style request or references (e.g., 'casual boho vibe'), which the agent converts into structured style data.")
}

// Invoke runs the nested loop. Exceeding its bound is reported as a tool
// failure; it never ends the supervisor's task.
func (t *StyleMatchTool) Invoke(ctx context.Context, scope *ports.TaskScope, args json.RawMessage) (ports.ToolResult, error) {
	instruction, err := parseInstruction(args)
	if err != nil {
		return ports.ToolResult{}, err
	}
	scope.Progress(MilestoneStyle)

	var messages []ports.PromptMessage
	if scope.Profile != "" {
		messages = append(messages, ports.PromptMessage{Role: ports.RoleUser, Content: scope.Profile})
	}
	messages = append(messages, ports.PromptMessage{Role: ports.RoleUser, Content: instruction})

	resp, err := t.runner.Run(ctx, &harness.Request{
		Agent:    t.agent,
		Messages: messages,
		Tools:    []ports.Tool{t.search},
		Scope:    scope,
		Policy:   t.policy,
	})
	if errors.Is(err, harness.ErrToolLoopExceeded) {
		t.logger.Warn().Str("task_id", scope.TaskID).Err(err).Msg("style match did not settle")
		return ports.ToolResult{}, fmt.Errorf("style match gave no final answer: %w", err)
	}
	if err != nil {
		return ports.ToolResult{}, err
	}

	text := resp.MergedText
	if text == "" {
		text = resp.Text
	}
	return ports.ToolResult{Text: text}, nil
}

var _ ports.Tool = (*StyleMatchTool)(nil)
