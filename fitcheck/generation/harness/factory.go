package harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/config"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // required for the libsql and sqlite store backends
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateOrchestrator creates a fully wired HarnessOrchestrator around provider.
func (f *Factory) CreateOrchestrator(provider ports.Provider) *HarnessOrchestrator {
	return NewHarnessOrchestrator(
		provider,
		NewPromptBuilder(),
		f.createRateLimiter(),
		f.CreateTracer(),
		f.logger,
	)
}

func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// CreateStore creates the conversation store selected by store.backend.
func (f *Factory) CreateStore() (ports.ConversationStore, error) {
	switch f.cfg.Store.Backend {
	case "", "file":
		return adapters.NewFileConversationStore(f.cfg.Stylist.DataDir), nil
	case "libsql", "sqlite":
		if f.db == nil {
			return nil, fmt.Errorf("store backend %s requires a database connection", f.cfg.Store.Backend)
		}
		return adapters.NewLibSQLConversationStore(f.db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", f.cfg.Store.Backend)
	}
}

// CreateProgressLog creates the per-user progress log.
func (f *Factory) CreateProgressLog() ports.ProgressLog {
	return adapters.NewFileProgressLog(f.cfg.Stylist.DataDir)
}

// CreateURLResolver creates the grounding URL resolver backed by the cache.
func (f *Factory) CreateURLResolver() *adapters.URLResolver {
	return adapters.NewURLResolver(nil, f.createCache(), f.cfg.Harness.CacheTTLSeconds, f.logger)
}

// CreateSearcher creates the headless browser search collaborator.
func (f *Factory) CreateSearcher() *adapters.RodSearcher {
	s := f.cfg.Search
	return adapters.NewRodSearcher(adapters.RodSearchConfig{
		URLTemplate:    s.URLTemplate,
		Bin:            s.ChromeBin,
		ControlURL:     s.ControlURL,
		Headless:       s.Headless,
		Timeout:        s.Timeout,
		Screenshots:    s.Screenshots,
		ScrollPixels:   s.ScrollPixels,
		SettleDelay:    s.SettleDelay,
		Zoom:           s.Zoom,
		Retries:        s.Retries,
		ViewportWidth:  s.ViewportWidth,
		ViewportHeight: s.ViewportHeight,
	}, f.logger)
}

// CreateAgents builds the agent table from config.
func (f *Factory) CreateAgents() map[string]AgentSpec {
	return AgentsFromConfig(f.cfg.Agents, f.cfg.Model.ModelID)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	h := f.cfg.Harness
	policy := &Policy{
		MaxIterations: h.MaxIterations,
		CallTimeout:   f.cfg.Model.CallTimeout,
		RetryCount:    h.RetryCount,
		RetryBackoff:  h.RetryBackoff,
	}

	if policy.MaxIterations < 1 {
		policy.MaxIterations = 1
		f.logger.Warn().Int("max_iterations", h.MaxIterations).Msg("MaxIterations clamped to minimum of 1")
	}
	if policy.MaxIterations > 50 {
		policy.MaxIterations = 50
		f.logger.Warn().Int("max_iterations", h.MaxIterations).Msg("MaxIterations clamped to maximum of 50")
	}
	if policy.RetryCount < 0 {
		policy.RetryCount = 0
	}
	if policy.RetryCount > 5 {
		policy.RetryCount = 5
		f.logger.Warn().Int("retry_count", h.RetryCount).Msg("RetryCount clamped to maximum of 5")
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
