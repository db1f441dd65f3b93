package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// PromptBuilder assembles model-ready inputs from an agent spec and its conversation.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build turns the agent spec and messages into a Provider PromptInput. The
// messages slice is copied, never modified.
func (b *PromptBuilder) Build(agent AgentSpec, messages []ports.PromptMessage, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	out := make([]ports.PromptMessage, len(messages))
	for i, m := range messages {
		out[i] = ports.PromptMessage{
			Role:    m.Role,
			Content: normalize(m.Content),
			Media:   m.Media,
		}
	}

	return ports.PromptInput{
		System:    normalize(agent.SystemInstruction),
		Messages:  out,
		Tools:     toolSpecs,
		Grounding: agent.Grounding,
		Meta:      meta,
	}
}

// Options derives per-call model options from the agent spec.
func (b *PromptBuilder) Options(agent AgentSpec, policy *Policy) ports.Options {
	return ports.Options{
		Model:        agent.ModelID,
		MaxNewTokens: agent.MaxOutputTokens,
		Temperature:  agent.Temperature,
		TimeoutMs:    int(policy.CallTimeout.Milliseconds()),
	}
}

// normalize newlines and trim whitespace
func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// ModelTurn renders the model's side of a tool-calling exchange. Tool calls
// are folded into text so the context stays a plain alternating transcript.
func ModelTurn(texts []string, calls []ports.ToolCall) ports.PromptMessage {
	var sb strings.Builder
	for _, t := range texts {
		sb.WriteString(t)
	}
	for _, c := range calls {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[call %s %s]", c.Name, compactArgs(c.Args))
	}
	return ports.PromptMessage{Role: ports.RoleModel, Content: sb.String()}
}

// ToolResultTurn renders a tool result as a user turn the end user never sees.
func ToolResultTurn(call ports.ToolCall, result ports.ToolResult) ports.PromptMessage {
	text := fmt.Sprintf("(System generated, not visible to the user)\n%s %s : Response :\n%s",
		call.Name, compactArgs(call.Args), result.Text)
	return ports.PromptMessage{
		Role:    ports.RoleUser,
		Content: text,
		Media:   result.Attachments,
	}
}

func compactArgs(args []byte) string {
	s := strings.TrimSpace(string(args))
	if s == "" {
		return "{}"
	}
	return s
}
