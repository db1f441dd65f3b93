package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// RodSearchConfig controls how inspiration pages are captured.
type RodSearchConfig struct {
	URLTemplate    string // %s receives the query-escaped search text
	Bin            string // chrome binary, empty lets rod download one
	ControlURL     string // attach to an existing browser instead of launching
	Headless       bool
	Timeout        time.Duration // per search call
	Screenshots    int
	ScrollPixels   int
	SettleDelay    time.Duration
	Zoom           float64
	Retries        int
	RetryBackoff   time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// RodSearcher captures screenshots of a visual search results page with a
// headless Chrome. One browser session is shared by every task; each search
// gets its own page. A failed capture retires the session it ran on: later
// searches start a fresh one, and the retired browser is shut down only after
// the last search still using it has finished.
type RodSearcher struct {
	cfg    RodSearchConfig
	logger zerolog.Logger
	open   func() (browserSession, error)
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	current *sessionLease
	closed  bool
}

// browserSession is one connected browser able to capture a results page.
type browserSession interface {
	Capture(ctx context.Context, target string) ([]ports.Artifact, error)
	Close()
}

type sessionLease struct {
	session  browserSession
	inflight int
	retired  bool
}

func NewRodSearcher(cfg RodSearchConfig, logger zerolog.Logger) *RodSearcher {
	if cfg.Screenshots < 1 {
		cfg.Screenshots = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = 1920, 1080
	}
	s := &RodSearcher{
		cfg:    cfg,
		logger: logger.With().Str("component", "rod_searcher").Logger(),
		sleep:  sleepFor,
	}
	s.open = s.openRod
	return s
}

// SearchURL renders the results page address for query.
func (s *RodSearcher) SearchURL(query string) string {
	return fmt.Sprintf(s.cfg.URLTemplate, url.QueryEscape(query))
}

// Search returns the captured screenshots in page order. Session start and
// navigation failures are retried with backoff; the last error is returned
// once the retries are spent.
func (s *RodSearcher) Search(ctx context.Context, query string) ([]ports.Artifact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}
	target := s.SearchURL(query)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.RetryBackoff*time.Duration(attempt)); err != nil {
				break
			}
		}

		artifacts, err := s.capture(ctx, target)
		if err == nil {
			return artifacts, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Str("query", query).Int("attempt", attempt+1).Msg("search capture failed")
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("search %q: %w", query, lastErr)
}

func (s *RodSearcher) capture(ctx context.Context, target string) ([]ports.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	lease, err := s.acquire()
	if err != nil {
		return nil, err
	}
	artifacts, err := lease.session.Capture(ctx, target)
	s.release(lease, err != nil)
	return artifacts, err
}

// acquire returns the current session, starting one if needed.
func (s *RodSearcher) acquire() (*sessionLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("searcher closed")
	}
	if s.current == nil {
		session, err := s.open()
		if err != nil {
			return nil, err
		}
		s.current = &sessionLease{session: session}
	}
	s.current.inflight++
	return s.current, nil
}

// release returns a lease. A failed capture retires the lease's session if it
// is still the current one; a retired session closes once nothing uses it.
func (s *RodSearcher) release(lease *sessionLease, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease.inflight--
	if failed && !lease.retired {
		lease.retired = true
		if s.current == lease {
			s.current = nil
		}
	}
	if lease.retired && lease.inflight == 0 {
		lease.session.Close()
	}
}

// Close shuts down a launched browser once in-flight searches finish.
// Attached browsers are left running.
func (s *RodSearcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.current != nil {
		lease := s.current
		s.current = nil
		lease.retired = true
		if lease.inflight == 0 {
			lease.session.Close()
		}
	}
	return nil
}

// openRod launches (or attaches to) Chrome and connects to it.
func (s *RodSearcher) openRod() (browserSession, error) {
	session := &rodSession{cfg: s.cfg, sleep: s.sleep, attached: s.cfg.ControlURL != ""}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(s.cfg.Headless).
			NoSandbox(true).
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("disable-gpu")).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled").
			Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", s.cfg.ViewportWidth, s.cfg.ViewportHeight))
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		session.launched = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		session.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	session.browser = browser
	s.logger.Info().Bool("attached", session.attached).Msg("browser session started")
	return session, nil
}

type rodSession struct {
	cfg      RodSearchConfig
	sleep    func(ctx context.Context, d time.Duration) error
	browser  *rod.Browser
	launched *launcher.Launcher
	attached bool
}

func (r *rodSession) Capture(ctx context.Context, target string) ([]ports.Artifact, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             r.cfg.ViewportWidth,
		Height:            r.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if r.cfg.Zoom > 0 && r.cfg.Zoom != 1 {
		if _, err := page.Eval(`(z) => { document.body.style.zoom = z }`, r.cfg.Zoom); err != nil {
			return nil, fmt.Errorf("zoom: %w", err)
		}
	}

	artifacts := make([]ports.Artifact, 0, r.cfg.Screenshots)
	for i := 0; i < r.cfg.Screenshots; i++ {
		if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
			return nil, err
		}
		shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return nil, fmt.Errorf("screenshot %d: %w", i+1, err)
		}
		artifacts = append(artifacts, ports.Artifact{
			Name:      fmt.Sprintf("inspiration-%d.png", i+1),
			Data:      shot,
			MIMEType:  "image/png",
			SourceURL: target,
		})

		if i < r.cfg.Screenshots-1 && r.cfg.ScrollPixels > 0 {
			if _, err := page.Eval(`(y) => window.scrollBy(0, y)`, r.cfg.ScrollPixels); err != nil {
				return nil, fmt.Errorf("scroll: %w", err)
			}
		}
	}
	return artifacts, nil
}

func (r *rodSession) Close() {
	if r.browser != nil && !r.attached {
		_ = r.browser.Close()
	}
	if r.launched != nil {
		r.launched.Kill()
		r.launched.Cleanup()
	}
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ ports.Searcher = (*RodSearcher)(nil)
