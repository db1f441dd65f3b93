package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GenAIProvider implements Provider on the Gemini API.
type GenAIProvider struct {
	client       *genai.Client
	defaultModel string
	logger       zerolog.Logger
}

// NewGenAIClient creates a Gemini API client. An empty key lets the SDK fall
// back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

func NewGenAIProvider(client *genai.Client, defaultModel string, logger zerolog.Logger) *GenAIProvider {
	return &GenAIProvider{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger.With().Str("component", "genai_provider").Logger(),
	}
}

// Complete sends one generate request.
func (p *GenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	contents := toContents(in.Messages)
	if len(contents) == 0 {
		return ports.Completion{}, errors.New("empty conversation")
	}
	cfg, err := toGenerateConfig(in, opts)
	if err != nil {
		return ports.Completion{}, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("generate content: %w", err)
	}

	completion, err := fromResponse(resp)
	if err != nil {
		return ports.Completion{}, err
	}
	p.logger.Debug().
		Str("model", model).
		Int("candidates", len(completion.Candidates)).
		Int("tool_calls", len(completion.ToolCalls())).
		Msg("completion received")
	return completion, nil
}

func toContents(messages []ports.PromptMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		parts := make([]*genai.Part, 0, len(m.Media)+1)
		for _, ref := range m.Media {
			parts = append(parts, genai.NewPartFromURI(ref.URI, ref.MIMEType))
		}
		if m.Content != "" || len(parts) == 0 {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		role := genai.RoleUser
		if m.Role == ports.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return contents
}

func toGenerateConfig(in ports.PromptInput, opts ports.Options) (*genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "text/plain",
	}
	if in.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(in.System)}}
	}
	if opts.Temperature != 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxNewTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxNewTokens)
	}

	if len(in.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(in.Tools))
		for _, spec := range in.Tools {
			schema, err := toSchema(spec.JSONSchema)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", spec.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			})
		}
		cfg.Tools = append(cfg.Tools, &genai.Tool{FunctionDeclarations: decls})
	}
	if in.Grounding {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	return cfg, nil
}

// jsonSchema is the subset of JSON Schema used by tool declarations.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Enum        []string               `json:"enum"`
}

func toSchema(raw []byte) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("decode parameter schema: %w", err)
	}
	return convertSchema(&js), nil
}

func convertSchema(js *jsonSchema) *genai.Schema {
	if js == nil {
		return nil
	}
	s := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(js.Type)),
		Description: js.Description,
		Required:    js.Required,
		Enum:        js.Enum,
		Items:       convertSchema(js.Items),
	}
	if len(js.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, prop := range js.Properties {
			s.Properties[name] = convertSchema(prop)
		}
	}
	return s
}

func fromResponse(resp *genai.GenerateContentResponse) (ports.Completion, error) {
	if resp == nil {
		return ports.Completion{}, errors.New("nil response")
	}
	out := ports.Completion{Raw: resp}

	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		var c ports.Candidate
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return ports.Completion{}, fmt.Errorf("encode args of %s: %w", part.FunctionCall.Name, err)
					}
					c.Parts = append(c.Parts, ports.Part{ToolCall: &ports.ToolCall{
						ID:   part.FunctionCall.ID,
						Name: part.FunctionCall.Name,
						Args: args,
					}})
					continue
				}
				if part.Text != "" {
					c.Parts = append(c.Parts, ports.Part{Text: part.Text})
				}
			}
		}
		if gm := cand.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk != nil && chunk.Web != nil && chunk.Web.URI != "" {
					out.GroundingSources = append(out.GroundingSources, chunk.Web.URI)
				}
			}
		}
		out.Candidates = append(out.Candidates, c)
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &ports.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

var _ ports.Provider = (*GenAIProvider)(nil)
