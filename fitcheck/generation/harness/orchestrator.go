package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Request configures one run of the tool loop.
type Request struct {
	Agent    AgentSpec
	Messages []ports.PromptMessage // initial context, never modified
	Tools    []ports.Tool          // filtered to Agent.ToolNames
	Scope    *ports.TaskScope
	Policy   *Policy
}

// Policy controls orchestration behavior.
type Policy struct {
	MaxIterations int           // model calls per loop
	CallTimeout   time.Duration // per model call
	RetryCount    int           // provider call retries
	RetryBackoff  time.Duration // base delay between retries
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxIterations: 10,
		CallTimeout:   60 * time.Second,
		RetryCount:    2,
		RetryBackoff:  500 * time.Millisecond,
	}
}

// Response is the final output of a loop.
type Response struct {
	Text             string           // text of the final, tool-free response
	MergedText       string           // every text part from every iteration
	Iterations       int              // model calls made
	ToolCalls        []ports.ToolCall // every call dispatched, in order
	GroundingSources []string
	Usage            ports.Usage
	Messages         []ports.PromptMessage // full context including the final model turn
}

// HarnessOrchestrator runs the bounded tool-calling loop shared by the
// supervisor and every sub-agent.
type HarnessOrchestrator struct {
	provider ports.Provider
	builder  *PromptBuilder
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewHarnessOrchestrator creates a new orchestrator with dependencies.
func NewHarnessOrchestrator(
	provider ports.Provider,
	builder *PromptBuilder,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	logger zerolog.Logger,
) *HarnessOrchestrator {
	if builder == nil {
		builder = NewPromptBuilder()
	}
	if limiter == nil {
		limiter = &noOpRateLimiter{}
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &HarnessOrchestrator{
		provider: provider,
		builder:  builder,
		limiter:  limiter,
		tracer:   tracer,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Run drives the agent until it answers without requesting a tool. Tool
// calls found in any part of any candidate are dispatched in order and their
// results appended to the context. If the model is still requesting tools on
// its last permitted call, Run fails with ErrToolLoopExceeded.
func (o *HarnessOrchestrator) Run(ctx context.Context, req *Request) (*Response, error) {
	policy := req.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	limit := policy.MaxIterations
	if req.Agent.MaxIterations > 0 {
		limit = req.Agent.MaxIterations
	}
	if limit < 1 {
		limit = 1
	}

	ctx, finish := o.tracer.StartSpan(ctx, "agent_loop", map[string]any{
		"agent":      req.Agent.Name,
		"tool_count": len(req.Tools),
	})
	var runErr error
	defer func() { finish(runErr) }()

	dispatcher := NewDispatcher(o.declaredTools(req.Agent, req.Tools), o.tracer)
	toolSpecs := dispatcher.Specs()
	opts := o.builder.Options(req.Agent, policy)

	messages := append([]ports.PromptMessage(nil), req.Messages...)
	resp := &Response{}
	var merged []string

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			return nil, err
		}

		prompt := o.builder.Build(req.Agent, messages, toolSpecs, map[string]string{
			"agent":     req.Agent.Name,
			"iteration": fmt.Sprintf("%d", iteration),
		})

		completion, err := o.complete(ctx, req.Agent.Name, iteration, prompt, opts, policy)
		if err != nil {
			runErr = fmt.Errorf("%s model call failed: %w", req.Agent.Name, err)
			return nil, runErr
		}
		resp.Iterations = iteration
		addUsage(&resp.Usage, completion.Usage)
		resp.GroundingSources = append(resp.GroundingSources, completion.GroundingSources...)

		texts := completion.Texts()
		merged = append(merged, texts...)
		calls := completion.ToolCalls()

		if len(calls) == 0 {
			resp.Text = strings.Join(texts, "")
			resp.MergedText = strings.Join(merged, "\n")
			resp.Messages = append(messages, ports.PromptMessage{Role: ports.RoleModel, Content: resp.Text})
			return resp, nil
		}

		if iteration >= limit {
			runErr = &LoopExceededError{Agent: req.Agent.Name, Iterations: iteration}
			o.logger.Warn().Str("agent", req.Agent.Name).Int("iterations", iteration).Msg("tool loop bound reached")
			return nil, runErr
		}

		messages = append(messages, ModelTurn(texts, calls))
		for _, call := range calls {
			result := dispatcher.Dispatch(ctx, req.Scope, call)
			resp.ToolCalls = append(resp.ToolCalls, call)
			if result.IsError {
				o.logger.Debug().Str("agent", req.Agent.Name).Str("tool", call.Name).Str("result", result.Text).Msg("tool returned error text")
			}
			messages = append(messages, ToolResultTurn(call, result))
		}
	}
}

// declaredTools keeps only the tools named in the agent's declared tool set.
// Anything else supplied by the caller is neither advertised nor executable.
func (o *HarnessOrchestrator) declaredTools(agent AgentSpec, tools []ports.Tool) []ports.Tool {
	declared := make(map[string]struct{}, len(agent.ToolNames))
	for _, name := range agent.ToolNames {
		declared[name] = struct{}{}
	}

	kept := make([]ports.Tool, 0, len(tools))
	supplied := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if _, ok := declared[t.Name()]; !ok {
			o.logger.Warn().Str("agent", agent.Name).Str("tool", t.Name()).Msg("tool not declared by agent, ignoring")
			continue
		}
		supplied[t.Name()] = struct{}{}
		kept = append(kept, t)
	}
	for _, name := range agent.ToolNames {
		if _, ok := supplied[name]; !ok {
			o.logger.Warn().Str("agent", agent.Name).Str("tool", name).Msg("declared tool has no handler")
		}
	}
	return kept
}

// complete calls the provider with rate limiting, a per-call deadline and
// retry with exponential backoff.
func (o *HarnessOrchestrator) complete(ctx context.Context, agent string, iteration int, in ports.PromptInput, opts ports.Options, policy *Policy) (ports.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := policy.RetryBackoff * time.Duration(1<<(attempt-1))
			if err := o.sleep(ctx, backoff); err != nil {
				return ports.Completion{}, lastErr
			}
		}

		completion, err := o.callOnce(ctx, agent, iteration, attempt, in, opts, policy)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		o.logger.Warn().Err(err).Str("agent", agent).Int("attempt", attempt+1).Msg("model call failed")
	}
	return ports.Completion{}, lastErr
}

func (o *HarnessOrchestrator) callOnce(ctx context.Context, agent string, iteration, attempt int, in ports.PromptInput, opts ports.Options, policy *Policy) (ports.Completion, error) {
	release, err := o.limiter.Acquire(ctx, agent)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("rate limit: %w", err)
	}
	defer release()

	if policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		defer cancel()
	}

	ctx, spanFinish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{
		"agent":     agent,
		"iteration": iteration,
		"attempt":   attempt,
	})
	completion, err := o.provider.Complete(ctx, in, opts)
	spanFinish(err)
	return completion, err
}

func addUsage(total *ports.Usage, u *ports.Usage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
