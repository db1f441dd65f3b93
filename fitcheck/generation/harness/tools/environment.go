package tools

import (
	"context"
	"encoding/json"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// EnvironmentTool asks a search-grounded agent about weather, location and
// venue. The grounding URLs it cites are resolved and recorded on the task.
type EnvironmentTool struct {
	runner   Runner
	agent    harness.AgentSpec
	policy   *harness.Policy
	resolver Resolver
	logger   zerolog.Logger
}

func NewEnvironmentTool(runner Runner, agent harness.AgentSpec, policy *harness.Policy, resolver Resolver, logger zerolog.Logger) *EnvironmentTool {
	return &EnvironmentTool{
		runner:   runner,
		agent:    agent,
		policy:   policy,
		resolver: resolver,
		logger:   logger,
	}
}

func (t *EnvironmentTool) Name() string { return harness.AgentEnvironment }

func (t *EnvironmentTool) Description() string {
	return "Fetch context about weather, location, and venue vibes to inform the final fashion recommendations."
}

func (t *EnvironmentTool) Schema() []byte {
	return instructionSchema("Specific instructions or queries related to location, weather, or event details for retrieving relevant context.")
}

// Invoke runs the environment agent once.
func (t *EnvironmentTool) Invoke(ctx context.Context, scope *ports.TaskScope, args json.RawMessage) (ports.ToolResult, error) {
	instruction, err := parseInstruction(args)
	if err != nil {
		return ports.ToolResult{}, err
	}

	resp, err := t.runner.Run(ctx, &harness.Request{
		Agent:    singleShot(t.agent),
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: instruction}},
		Scope:    scope,
		Policy:   t.policy,
	})
	if err != nil {
		return ports.ToolResult{}, err
	}

	sources := resp.GroundingSources
	if t.resolver != nil && len(sources) > 0 {
		sources = t.resolver.ResolveAll(ctx, sources)
	}
	scope.Grounding.Add(sources...)
	t.logger.Debug().Str("task_id", scope.TaskID).Int("sources", len(sources)).Msg("environment agent answered")

	return ports.ToolResult{Text: resp.Text}, nil
}

// singleShot limits an agent with no tools to one model call.
func singleShot(agent harness.AgentSpec) harness.AgentSpec {
	agent.ToolNames = nil
	agent.MaxIterations = 1
	return agent
}

var _ ports.Tool = (*EnvironmentTool)(nil)
