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

// SearchSchema defines the JSON schema for search tool parameters.
const SearchSchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "The search query for visual outfit inspiration."
    }
  },
  "required": ["query"]
}`

// SearchTool retrieves inspiration images, uploads them for the model and
// records them in the task's media registry.
type SearchTool struct {
	searcher ports.Searcher
	uploader ports.Uploader
	logger   zerolog.Logger
}

func NewSearchTool(searcher ports.Searcher, uploader ports.Uploader, logger zerolog.Logger) *SearchTool {
	return &SearchTool{searcher: searcher, uploader: uploader, logger: logger}
}

func (t *SearchTool) Name() string { return harness.ToolSearch }

func (t *SearchTool) Description() string {
	return "Search Pinterest for inspiration images based on a query."
}

func (t *SearchTool) Schema() []byte { return []byte(SearchSchema) }

// Invoke runs one search. Any failure is returned as error text for the
// calling agent; progress milestones are advisory.
func (t *SearchTool) Invoke(ctx context.Context, scope *ports.TaskScope, args json.RawMessage) (ports.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ports.ToolResult{}, fmt.Errorf("invalid arguments: %w", err)
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return ports.ToolResult{}, fmt.Errorf("query is required")
	}
	if t.searcher == nil || t.uploader == nil {
		return errorResult("Error during search: search is not available"), nil
	}

	scope.Progress(MilestoneSearch)
	artifacts, err := t.searcher.Search(ctx, query)
	if err != nil {
		t.logger.Warn().Err(err).Str("task_id", scope.TaskID).Str("query", query).Msg("search failed")
		return errorResult(fmt.Sprintf("Error during search: %v", err)), nil
	}
	if len(artifacts) == 0 {
		return errorResult(fmt.Sprintf("Search for %q returned no images.", query)), nil
	}

	var refs []ports.MediaRef
	var lines []string
	for _, a := range artifacts {
		ref, err := t.uploader.UploadBytes(ctx, a.Name, a.Data, a.MIMEType)
		if err != nil {
			t.logger.Warn().Err(err).Str("task_id", scope.TaskID).Str("artifact", a.Name).Msg("upload of search result failed")
			continue
		}
		refs = append(refs, ref)
		line := a.Name
		if a.SourceURL != "" {
			line += " (" + a.SourceURL + ")"
		}
		lines = append(lines, line)
		if len(refs) == 1 {
			scope.Progress(MilestoneMatching)
		}
	}
	if len(refs) == 0 {
		return errorResult("Error during search: no result could be uploaded"), nil
	}

	first := scope.Media.Add(refs...)
	scope.Progress(MilestoneFinalizing)
	t.logger.Debug().Str("task_id", scope.TaskID).Int("images", len(refs)).Int("first_index", first).Msg("search results registered")

	text := fmt.Sprintf("Search returned these images: %s. Analyze these images for inspiration and provide fashion recommendations based on the user's closet and the search results.",
		strings.Join(lines, ", "))
	return ports.ToolResult{Text: text, Attachments: refs}, nil
}

func errorResult(text string) ports.ToolResult {
	return ports.ToolResult{Text: text, IsError: true}
}

var _ ports.Tool = (*SearchTool)(nil)
