package harness

import (
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/config"
)

// Agent names. Tool names exposed to the supervisor match the sub-agent names.
const (
	AgentSupervisor     = "supervisor"
	AgentEnvironment    = "environment"
	AgentClosetAnalysis = "closet_analysis"
	AgentStyleMatch     = "style_match"

	ToolSearch = "search"
)

// AgentSpec is the configuration of one model-backed agent. Every agent runs
// through the same loop; only the spec differs.
type AgentSpec struct {
	Name              string
	SystemInstruction string
	ToolNames         []string // declared tools, empty for single-shot agents
	ModelID           string
	Temperature       float32
	MaxOutputTokens   int
	Grounding         bool // implicit web search grounding
	MaxIterations     int  // 0 uses the policy bound
}

const supervisorInstruction = `You are a personal stylist coordinating three specialist agents.
1) environment: looks up weather, location and venue atmosphere on the web.
2) closet_analysis: gives a detailed description of the clothes in the user's photo.
3) style_match: finds online inspiration and aligns it with the user's taste and closet.

Use these agents to learn about the user's surroundings, their wardrobe and their style before answering. Call one function at a time. Give detailed answers. Once you have given a final recommendation, stop calling functions and end the turn.`

const environmentInstruction = `You are a helpful assistant that uses web search to describe the weather, the location and the vibe of a venue.`

const closetInstruction = `You are a closet analysis agent. Study the user's closet photo and report clothing types, color profiles and recurring style patterns.`

const styleMatchInstruction = `You are a style match agent. Use the search function to look for inspiration images, then compare them with the user's closet and preferences and give concrete outfit recommendations. Take the user's interests, their style preferences and the context of the event into account.`

// DefaultAgents returns the built-in agent table.
func DefaultAgents() map[string]AgentSpec {
	return map[string]AgentSpec{
		AgentSupervisor: {
			Name:              AgentSupervisor,
			SystemInstruction: supervisorInstruction,
			ToolNames:         []string{AgentEnvironment, AgentClosetAnalysis, AgentStyleMatch},
			Temperature:       0.5,
		},
		AgentEnvironment: {
			Name:              AgentEnvironment,
			SystemInstruction: environmentInstruction,
			MaxOutputTokens:   600,
			Grounding:         true,
		},
		AgentClosetAnalysis: {
			Name:              AgentClosetAnalysis,
			SystemInstruction: closetInstruction,
			MaxOutputTokens:   600,
		},
		AgentStyleMatch: {
			Name:              AgentStyleMatch,
			SystemInstruction: styleMatchInstruction,
			ToolNames:         []string{ToolSearch},
			Temperature:       0.8,
		},
	}
}

// AgentsFromConfig overlays configured values on the built-in table. Zero
// values in the configuration leave the built-in value untouched. Agents
// that do not exist in the built-in table are ignored: the tool surface is
// fixed.
func AgentsFromConfig(agents map[string]config.AgentConfig, fallbackModel string) map[string]AgentSpec {
	out := DefaultAgents()
	for name, spec := range out {
		if override, ok := agents[name]; ok {
			if override.ModelID != "" {
				spec.ModelID = override.ModelID
			}
			if override.Temperature != 0 {
				spec.Temperature = override.Temperature
			}
			if override.MaxOutputTokens > 0 {
				spec.MaxOutputTokens = int(override.MaxOutputTokens)
			}
			if override.SystemInstruction != "" {
				spec.SystemInstruction = override.SystemInstruction
			}
			if override.MaxIterations > 0 {
				spec.MaxIterations = override.MaxIterations
			}
		}
		if spec.ModelID == "" {
			spec.ModelID = fallbackModel
		}
		out[name] = spec
	}
	return out
}
