package adapters

import (
	"context"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ZerologTracer implements the Tracer interface using zerolog. Span loggers
// travel in the context so nested spans inherit their parent's fields.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a new zerolog tracer.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{
		logger: logger,
	}
}

func (t *ZerologTracer) parent(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return t.logger
}

// StartSpan starts a new tracing span and returns the context and finish function.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	lc := t.parent(ctx).With().Str("span", name)
	for k, v := range attrs {
		lc = lc.Interface(k, v)
	}
	spanLogger := lc.Logger()
	ctx = spanLogger.WithContext(ctx)

	start := time.Now()
	spanLogger.Debug().Str("event", "span_start").Msg("span started")

	finish := func(err error) {
		event := spanLogger.Debug()
		if err != nil {
			event = spanLogger.Warn().Err(err)
		}
		event.Str("event", "span_end").Dur("duration", time.Since(start)).Msg("span finished")
	}

	return ctx, finish
}

// Event logs a tracing event with the current span context.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	l := t.parent(ctx)
	event := l.Info()
	for k, v := range attrs {
		event = event.Interface(k, v)
	}
	event.Str("event", name).Msg("trace event")
}

var _ ports.Tracer = (*ZerologTracer)(nil)
