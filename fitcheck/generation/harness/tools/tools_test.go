package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// MockSearcher for testing
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string) ([]ports.Artifact, error) {
	args := m.Called(ctx, query)
	artifacts, _ := args.Get(0).([]ports.Artifact)
	return artifacts, args.Error(1)
}

// MockUploader for testing
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) UploadFile(ctx context.Context, path string) (ports.MediaRef, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(ports.MediaRef), args.Error(1)
}

func (m *MockUploader) UploadBytes(ctx context.Context, name string, data []byte, mimeType string) (ports.MediaRef, error) {
	args := m.Called(ctx, name, data, mimeType)
	return args.Get(0).(ports.MediaRef), args.Error(1)
}

// fakeRunner records requests and answers from a script.
type fakeRunner struct {
	mu       sync.Mutex
	requests []*harness.Request
	resp     *harness.Response
	err      error
}

func (r *fakeRunner) Run(ctx context.Context, req *harness.Request) (*harness.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.resp, r.err
}

type fakeResolver struct{}

func (fakeResolver) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = u + "/final"
	}
	return out
}

// scriptedProvider answers model calls in order.
type scriptedProvider struct {
	mu     sync.Mutex
	n      int
	inputs []ports.PromptInput
	script func(n int, in ports.PromptInput) ports.Completion
}

func (p *scriptedProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	p.n++
	n := p.n
	p.inputs = append(p.inputs, in)
	p.mu.Unlock()
	return p.script(n, in), nil
}

func text(s string) ports.Completion {
	return ports.Completion{Candidates: []ports.Candidate{{Parts: []ports.Part{{Text: s}}}}}
}

func searchCall(query string) ports.Completion {
	c := ports.ToolCall{Name: harness.ToolSearch, Args: json.RawMessage(`{"query":"` + query + `"}`)}
	return ports.Completion{Candidates: []ports.Candidate{{Parts: []ports.Part{{Text: "Looking for inspiration."}, {ToolCall: &c}}}}}
}

func instruction(s string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"instruction_to_agent": s})
	return b
}

func recordingScope() (*ports.TaskScope, *[]string) {
	var mu sync.Mutex
	var milestones []string
	scope := ports.NewTaskScope("task-1", "u1", func(msg string) {
		mu.Lock()
		milestones = append(milestones, msg)
		mu.Unlock()
	})
	return scope, &milestones
}

func TestEnvironmentTool_RecordsResolvedGrounding(t *testing.T) {
	runner := &fakeRunner{resp: &harness.Response{
		Text:             "Cancun in June: 30C, humid, evening breeze.",
		GroundingSources: []string{"https://redirect/a", "https://redirect/b"},
	}}
	agents := harness.DefaultAgents()
	tool := NewEnvironmentTool(runner, agents[harness.AgentEnvironment], nil, fakeResolver{}, zerolog.Nop())
	scope, _ := recordingScope()
	scope.Grounding.Add("https://redirect/a/final")

	res, err := tool.Invoke(context.Background(), scope, instruction("Weather in Cancun in June"))
	require.NoError(t, err)
	assert.Equal(t, "Cancun in June: 30C, humid, evening breeze.", res.Text)
	assert.Equal(t, []string{"https://redirect/a/final", "https://redirect/b/final"}, scope.Grounding.List())

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, 1, req.Agent.MaxIterations)
	assert.True(t, req.Agent.Grounding)
	assert.Empty(t, req.Tools)
	assert.Equal(t, "Weather in Cancun in June", req.Messages[0].Content)
}

func TestEnvironmentTool_ModelFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("quota exhausted")}
	tool := NewEnvironmentTool(runner, harness.AgentSpec{Name: harness.AgentEnvironment}, nil, nil, zerolog.Nop())
	scope, _ := recordingScope()

	_, err := tool.Invoke(context.Background(), scope, instruction("weather"))
	assert.ErrorContains(t, err, "quota exhausted")
	assert.Empty(t, scope.Grounding.List())

	d := harness.NewDispatcher([]ports.Tool{tool}, nil)
	res := d.Dispatch(context.Background(), scope, ports.ToolCall{Name: harness.AgentEnvironment, Args: instruction("weather")})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error in environment: quota exhausted", res.Text)
}

func TestClosetTool(t *testing.T) {
	t.Run("analyzes primary image", func(t *testing.T) {
		runner := &fakeRunner{resp: &harness.Response{Text: "Two linen shirts, navy chinos."}}
		tool := NewClosetTool(runner, harness.DefaultAgents()[harness.AgentClosetAnalysis], nil, zerolog.Nop())
		scope, milestones := recordingScope()
		scope.Media.Add(ports.MediaRef{URI: "files/img", MIMEType: "image/jpeg", Details: "taken 2025:03:01"})
		scope.Media.Add(ports.MediaRef{URI: "files/aud", MIMEType: "audio/mpeg"})

		res, err := tool.Invoke(context.Background(), scope, instruction("Describe the closet"))
		require.NoError(t, err)
		assert.Equal(t, "Two linen shirts, navy chinos.", res.Text)
		assert.Equal(t, []string{MilestoneCloset}, *milestones)

		msg := runner.requests[0].Messages[0]
		require.Len(t, msg.Media, 1)
		assert.Equal(t, "files/img", msg.Media[0].URI)
		assert.Contains(t, msg.Content, "taken 2025:03:01")
		assert.Equal(t, 600, runner.requests[0].Agent.MaxOutputTokens)
	})

	t.Run("no image", func(t *testing.T) {
		runner := &fakeRunner{}
		tool := NewClosetTool(runner, harness.AgentSpec{}, nil, zerolog.Nop())
		scope, _ := recordingScope()
		scope.Media.Add(ports.MediaRef{URI: "files/aud", MIMEType: "audio/mpeg"})

		res, err := tool.Invoke(context.Background(), scope, instruction("Describe the closet"))
		require.NoError(t, err)
		assert.Equal(t, NoClosetImage, res.Text)
		assert.Empty(t, runner.requests)
	})

	t.Run("missing instruction", func(t *testing.T) {
		tool := NewClosetTool(&fakeRunner{}, harness.AgentSpec{}, nil, zerolog.Nop())
		scope, _ := recordingScope()
		_, err := tool.Invoke(context.Background(), scope, json.RawMessage(`{"instruction_to_agent":"  "}`))
		assert.Error(t, err)
	})
}

func TestSearchTool_RegistersUploadedResults(t *testing.T) {
	searcher := new(MockSearcher)
	uploader := new(MockUploader)
	artifacts := []ports.Artifact{
		{Name: "shot-1.png", Data: []byte("a"), MIMEType: "image/png", SourceURL: "https://pins/1"},
		{Name: "shot-2.png", Data: []byte("b"), MIMEType: "image/png"},
		{Name: "shot-3.png", Data: []byte("c"), MIMEType: "image/png"},
	}
	searcher.On("Search", mock.Anything, "beach wedding").Return(artifacts, nil)
	uploader.On("UploadBytes", mock.Anything, "shot-1.png", []byte("a"), "image/png").Return(ports.MediaRef{URI: "files/1", MIMEType: "image/png"}, nil)
	uploader.On("UploadBytes", mock.Anything, "shot-2.png", []byte("b"), "image/png").Return(ports.MediaRef{}, errors.New("upload timeout"))
	uploader.On("UploadBytes", mock.Anything, "shot-3.png", []byte("c"), "image/png").Return(ports.MediaRef{URI: "files/3", MIMEType: "image/png"}, nil)

	tool := NewSearchTool(searcher, uploader, zerolog.Nop())
	scope, milestones := recordingScope()
	scope.Media.Add(ports.MediaRef{URI: "files/primary", MIMEType: "image/jpeg"})

	res, err := tool.Invoke(context.Background(), scope, json.RawMessage(`{"query":"beach wedding"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Attachments, 2)
	assert.Contains(t, res.Text, "shot-1.png (https://pins/1)")
	assert.NotContains(t, res.Text, "shot-2.png")
	assert.Equal(t, 3, scope.Media.Len())
	third, _ := scope.Media.Get(2)
	assert.Equal(t, "files/3", third.URI)
	assert.Equal(t, []string{MilestoneSearch, MilestoneMatching, MilestoneFinalizing}, *milestones)

	searcher.AssertExpectations(t)
	uploader.AssertExpectations(t)
}

func TestSearchTool_FailuresBecomeText(t *testing.T) {
	searcher := new(MockSearcher)
	uploader := new(MockUploader)
	searcher.On("Search", mock.Anything, "boho").Return(nil, errors.New("browser crashed"))
	searcher.On("Search", mock.Anything, "nothing").Return([]ports.Artifact{}, nil)
	tool := NewSearchTool(searcher, uploader, zerolog.Nop())
	scope, _ := recordingScope()

	res, err := tool.Invoke(context.Background(), scope, json.RawMessage(`{"query":"boho"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error during search: browser crashed", res.Text)

	res, err = tool.Invoke(context.Background(), scope, json.RawMessage(`{"query":"nothing"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, 0, scope.Media.Len())
	uploader.AssertNotCalled(t, "UploadBytes", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	res, err = NewSearchTool(nil, nil, zerolog.Nop()).Invoke(context.Background(), scope, json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestStyleMatchTool_NestedLoopMergesText(t *testing.T) {
	searcher := new(MockSearcher)
	uploader := new(MockUploader)
	searcher.On("Search", mock.Anything, "beach wedding guest").Return([]ports.Artifact{
		{Name: "shot-1.png", Data: []byte("a"), MIMEType: "image/png"},
	}, nil)
	uploader.On("UploadBytes", mock.Anything, "shot-1.png", []byte("a"), "image/png").
		Return(ports.MediaRef{URI: "files/s1", MIMEType: "image/png"}, nil)

	provider := &scriptedProvider{script: func(n int, in ports.PromptInput) ports.Completion {
		if n == 1 {
			return searchCall("beach wedding guest")
		}
		return text("Pair the linen shirt with sand chinos.")
	}}
	orch := harness.NewHarnessOrchestrator(provider, nil, nil, nil, zerolog.Nop())
	tool := NewStyleMatchTool(orch, harness.DefaultAgents()[harness.AgentStyleMatch], nil,
		NewSearchTool(searcher, uploader, zerolog.Nop()), zerolog.Nop())

	scope, milestones := recordingScope()
	scope.Profile = "User Profile:\n  Name: Ada"
	res, err := tool.Invoke(context.Background(), scope, instruction("beach wedding look"))
	require.NoError(t, err)
	assert.Equal(t, "Looking for inspiration.\nPair the linen shirt with sand chinos.", res.Text)
	assert.Equal(t, 1, scope.Media.Len())
	assert.Equal(t, MilestoneStyle, (*milestones)[0])

	require.Len(t, provider.inputs, 2)
	first := provider.inputs[0]
	assert.Equal(t, "User Profile:\n  Name: Ada", first.Messages[0].Content)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, harness.ToolSearch, first.Tools[0].Name)
	last := provider.inputs[1].Messages[len(provider.inputs[1].Messages)-1]
	require.Len(t, last.Media, 1)
	assert.Equal(t, "files/s1", last.Media[0].URI)
}

func TestStyleMatchTool_BoundIsAbsorbed(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("offline"))
	provider := &scriptedProvider{script: func(n int, in ports.PromptInput) ports.Completion {
		return searchCall("again")
	}}
	orch := harness.NewHarnessOrchestrator(provider, nil, nil, nil, zerolog.Nop())
	agent := harness.DefaultAgents()[harness.AgentStyleMatch]
	agent.MaxIterations = 3
	tool := NewStyleMatchTool(orch, agent, nil, NewSearchTool(searcher, new(MockUploader), zerolog.Nop()), zerolog.Nop())

	scope, _ := recordingScope()
	d := harness.NewDispatcher([]ports.Tool{tool}, nil)
	res := d.Dispatch(context.Background(), scope, ports.ToolCall{Name: harness.AgentStyleMatch, Args: instruction("boho")})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "Error in style_match")
	assert.Equal(t, 3, provider.n)
}

func TestSupervisorTools_Surface(t *testing.T) {
	tools := SupervisorTools(Deps{Agents: harness.DefaultAgents(), Logger: zerolog.Nop()})
	require.Len(t, tools, 3)

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
		var schema struct {
			Required []string `json:"required"`
		}
		require.NoError(t, json.Unmarshal(tool.Schema(), &schema))
		assert.Equal(t, []string{"instruction_to_agent"}, schema.Required)
	}
	assert.Equal(t, harness.DefaultAgents()[harness.AgentSupervisor].ToolNames, names)
}
