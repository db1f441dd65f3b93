package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, ok := c.Get(ctx, "a") // a becomes most recent
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_TTLAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(4)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10))
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(11 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, "x", []byte("y"), 0))
	require.NoError(t, c.Delete(ctx, "x"))
	_, ok = c.Get(ctx, "x")
	assert.False(t, ok)
}

func TestTokenBucket_WaitsForRefill(t *testing.T) {
	tb := NewTokenBucket(1, 20*time.Millisecond)
	ctx := context.Background()

	release, err := tb.Acquire(ctx, "model")
	require.NoError(t, err)
	release()

	start := time.Now()
	_, err = tb.Acquire(ctx, "model")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	// Separate keys have separate buckets.
	_, err = tb.Acquire(ctx, "other")
	assert.NoError(t, err)
}

func TestTokenBucket_ContextCancel(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	_, err := tb.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tb.Acquire(ctx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestZerologTracer_NestedSpans(t *testing.T) {
	tracer := NewZerologTracer(zerolog.Nop())
	ctx, finish := tracer.StartSpan(context.Background(), "outer", map[string]any{"agent": "supervisor"})
	inner, finishInner := tracer.StartSpan(ctx, "inner", nil)
	tracer.Event(inner, "tick", map[string]any{"n": 1})
	finishInner(errors.New("boom"))
	finish(nil)
	assert.NotNil(t, inner)
}
