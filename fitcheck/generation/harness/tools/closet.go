package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// NoClosetImage is returned to the supervisor when the request carried no image.
const NoClosetImage = "No closet image was provided with this request, so the closet cannot be analyzed. Base the recommendation on the user's profile and ask them to share a photo of their wardrobe for a closer match."

// ClosetTool runs the closet analysis agent over the task's primary image.
type ClosetTool struct {
	runner Runner
	agent  harness.AgentSpec
	policy *harness.Policy
	logger zerolog.Logger
}

func NewClosetTool(runner Runner, agent harness.AgentSpec, policy *harness.Policy, logger zerolog.Logger) *ClosetTool {
	return &ClosetTool{runner: runner, agent: agent, policy: policy, logger: logger}
}

func (t *ClosetTool) Name() string { return harness.AgentClosetAnalysis }

func (t *ClosetTool) Description() string {
	return "Analyze the user's closet from images to detect clothing types, color profiles, and style patterns."
}

func (t *ClosetTool) Schema() []byte {
	return instructionSchema("Instruction plus any reference to the closet images or user's existing wardrobe data for classification.")
}

// Invoke runs the closet agent once. The primary image is media index 0;
// without it the tool answers with an explanation instead of failing.
func (t *ClosetTool) Invoke(ctx context.Context, scope *ports.TaskScope, args json.RawMessage) (ports.ToolResult, error) {
	instruction, err := parseInstruction(args)
	if err != nil {
		return ports.ToolResult{}, err
	}
	scope.Progress(MilestoneCloset)

	image, ok := scope.Media.Get(0)
	if !ok || !strings.HasPrefix(image.MIMEType, "image/") {
		t.logger.Debug().Str("task_id", scope.TaskID).Msg("closet analysis without image")
		return ports.ToolResult{Text: NoClosetImage}, nil
	}

	content := instruction
	if image.Details != "" {
		content = instruction + "\n\nPhoto details: " + image.Details
	}

	resp, err := t.runner.Run(ctx, &harness.Request{
		Agent: singleShot(t.agent),
		Messages: []ports.PromptMessage{{
			Role:    ports.RoleUser,
			Content: content,
			Media:   []ports.MediaRef{image},
		}},
		Scope:  scope,
		Policy: t.policy,
	})
	if err != nil {
		return ports.ToolResult{}, err
	}
	return ports.ToolResult{Text: resp.Text}, nil
}

var _ ports.Tool = (*ClosetTool)(nil)
