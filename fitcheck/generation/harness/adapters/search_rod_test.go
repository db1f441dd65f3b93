package adapters

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodSearcher_SearchURL(t *testing.T) {
	s := NewRodSearcher(RodSearchConfig{URLTemplate: "http://in.pinterest.com/search/pins/?q=%s"}, zerolog.Nop())
	assert.Equal(t, "http://in.pinterest.com/search/pins/?q=beach+wedding+linen", s.SearchURL("beach wedding linen"))
	assert.Equal(t, "http://in.pinterest.com/search/pins/?q=a%26b", s.SearchURL("a&b"))
}

func TestRodSearcher_RejectsEmptyQuery(t *testing.T) {
	s := NewRodSearcher(RodSearchConfig{URLTemplate: "http://example.com/?q=%s"}, zerolog.Nop())
	_, err := s.Search(context.Background(), "   ")
	assert.ErrorContains(t, err, "empty search query")
	assert.NoError(t, s.Close())
}

type fakeSession struct {
	mu      sync.Mutex
	closed  bool
	capture func(ctx context.Context, target string) ([]ports.Artifact, error)
}

func (f *fakeSession) Capture(ctx context.Context, target string) ([]ports.Artifact, error) {
	return f.capture(ctx, target)
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newFakeSearcher(sessions ...*fakeSession) (*RodSearcher, *int) {
	s := NewRodSearcher(RodSearchConfig{URLTemplate: "http://example.com/?q=%s"}, zerolog.Nop())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	opened := 0
	s.open = func() (browserSession, error) {
		if opened >= len(sessions) {
			return nil, errors.New("no more sessions")
		}
		opened++
		return sessions[opened-1], nil
	}
	return s, &opened
}

func TestRodSearcher_FailureDoesNotDisturbConcurrentSearch(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	shared := &fakeSession{}
	shared.capture = func(ctx context.Context, target string) ([]ports.Artifact, error) {
		if strings.Contains(target, "broken") {
			return nil, errors.New("navigate: net::ERR_ABORTED")
		}
		close(started)
		<-proceed
		if shared.Closed() {
			return nil, errors.New("browser closed underneath")
		}
		return []ports.Artifact{{Name: "inspiration-1.png", SourceURL: target}}, nil
	}
	fresh := &fakeSession{capture: func(ctx context.Context, target string) ([]ports.Artifact, error) {
		return []ports.Artifact{{Name: "inspiration-1.png", SourceURL: target}}, nil
	}}
	s, opened := newFakeSearcher(shared, fresh)

	type outcome struct {
		artifacts []ports.Artifact
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		artifacts, err := s.Search(context.Background(), "linen suit")
		done <- outcome{artifacts, err}
	}()
	<-started

	_, err := s.Search(context.Background(), "broken query")
	require.Error(t, err)
	assert.False(t, shared.Closed(), "session stays open while another search uses it")

	close(proceed)
	res := <-done
	require.NoError(t, res.err)
	assert.Len(t, res.artifacts, 1)
	assert.True(t, shared.Closed(), "retired session closes after its last search")

	_, err = s.Search(context.Background(), "linen suit")
	require.NoError(t, err)
	assert.Equal(t, 2, *opened)
	assert.False(t, fresh.Closed())

	require.NoError(t, s.Close())
	assert.True(t, fresh.Closed())
	_, err = s.Search(context.Background(), "linen suit")
	assert.ErrorContains(t, err, "searcher closed")
}

func TestRodSearcher_RetriesOnFreshSession(t *testing.T) {
	first := &fakeSession{capture: func(ctx context.Context, target string) ([]ports.Artifact, error) {
		return nil, errors.New("wait load: timeout")
	}}
	second := &fakeSession{capture: func(ctx context.Context, target string) ([]ports.Artifact, error) {
		return []ports.Artifact{{Name: "inspiration-1.png"}}, nil
	}}
	s, opened := newFakeSearcher(first, second)
	s.cfg.Retries = 1

	artifacts, err := s.Search(context.Background(), "beach wedding")
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
	assert.Equal(t, 2, *opened)
	assert.True(t, first.Closed())
}
