package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Progress milestones reported to the user while sub-agents work.
const (
	MilestoneCloset     = "Analyzing your closet 🧐"
	MilestoneStyle      = "Calculating your fit check 💅"
	MilestoneSearch     = "Going over pinterest for inspiration 💫"
	MilestoneMatching   = "Matching to your taste! 💢"
	MilestoneFinalizing = "Finalizing inspirations ☺️"
)

// Runner runs one bounded agent loop. *harness.HarnessOrchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req *harness.Request) (*harness.Response, error)
}

// Resolver canonicalizes grounding URLs.
type Resolver interface {
	ResolveAll(ctx context.Context, urls []string) []string
}

// Deps collects the collaborators of the supervisor's tool surface.
type Deps struct {
	Runner   Runner
	Agents   map[string]harness.AgentSpec
	Policy   *harness.Policy
	Searcher ports.Searcher
	Uploader ports.Uploader
	Resolver Resolver // optional
	Logger   zerolog.Logger
}

// SupervisorTools returns the tools the supervisor may call, in declaration order.
func SupervisorTools(d Deps) []ports.Tool {
	return []ports.Tool{
		NewEnvironmentTool(d.Runner, d.Agents[harness.AgentEnvironment], d.Policy, d.Resolver, d.Logger),
		NewClosetTool(d.Runner, d.Agents[harness.AgentClosetAnalysis], d.Policy, d.Logger),
		NewStyleMatchTool(d.Runner, d.Agents[harness.AgentStyleMatch], d.Policy,
			NewSearchTool(d.Searcher, d.Uploader, d.Logger), d.Logger),
	}
}

// instructionSchema is shared by every sub-agent tool.
func instructionSchema(description string) []byte {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instruction_to_agent": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"instruction_to_agent"},
	}
	b, _ := json.Marshal(schema)
	return b
}

func parseInstruction(args json.RawMessage) (string, error) {
	var params struct {
		Instruction string `json:"instruction_to_agent"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	params.Instruction = strings.TrimSpace(params.Instruction)
	if params.Instruction == "" {
		return "", fmt.Errorf("instruction_to_agent is required")
	}
	return params.Instruction, nil
}
