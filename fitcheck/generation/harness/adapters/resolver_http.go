package adapters

import (
	"context"
	"net/http"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// URLResolver follows redirects to recover the final address of grounding
// links. Results are memoized in a Cache and concurrent lookups of the same
// URL share one request.
type URLResolver struct {
	client *http.Client
	cache  ports.Cache
	ttl    int
	group  singleflight.Group
	logger zerolog.Logger
}

// NewURLResolver creates a resolver. A nil client uses a 10 second timeout
// client; a nil cache disables memoization.
func NewURLResolver(client *http.Client, cache ports.Cache, ttlSeconds int, logger zerolog.Logger) *URLResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &URLResolver{
		client: client,
		cache:  cache,
		ttl:    ttlSeconds,
		logger: logger.With().Str("component", "url_resolver").Logger(),
	}
}

// Resolve returns the final URL after redirects, or raw when it cannot be
// resolved.
func (r *URLResolver) Resolve(ctx context.Context, raw string) string {
	if raw == "" {
		return raw
	}
	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, raw); ok {
			return string(v)
		}
	}

	v, _, _ := r.group.Do(raw, func() (any, error) {
		final, err := r.follow(ctx, raw)
		if err != nil {
			r.logger.Debug().Err(err).Str("url", raw).Msg("redirect resolution failed")
			return raw, nil
		}
		if r.cache != nil {
			_ = r.cache.Set(ctx, raw, []byte(final), r.ttl)
		}
		return final, nil
	})
	return v.(string)
}

// ResolveAll resolves each URL in order.
func (r *URLResolver) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = r.Resolve(ctx, u)
	}
	return out
}

func (r *URLResolver) follow(ctx context.Context, raw string) (string, error) {
	final, err := r.request(ctx, http.MethodHead, raw)
	if err == nil {
		return final, nil
	}
	return r.request(ctx, http.MethodGet, raw)
}

func (r *URLResolver) request(ctx context.Context, method, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, raw, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", &httpStatusError{code: resp.StatusCode}
	}
	return resp.Request.URL.String(), nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
