// Package inbox accepts stylist requests dropped as JSON files into a
// directory. Accepted files are renamed with an .accepted suffix, rejected
// ones with .rejected.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/stylist"
)

const (
	AcceptedSuffix = ".accepted"
	RejectedSuffix = ".rejected"
)

// Submitter accepts a request and returns its task ID without waiting.
type Submitter interface {
	Submit(ctx context.Context, req stylist.Request) (string, error)
}

// Watcher turns *.json files in a directory into submitted tasks.
type Watcher struct {
	dir      string
	submit   Submitter
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event
}

func NewWatcher(dir string, submit Submitter, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		submit:   submit,
		logger:   logger.With().Str("component", "inbox").Str("dir", dir).Logger(),
		debounce: 250 * time.Millisecond,
		pending:  make(map[string]time.Time),
	}
}

// Run watches the directory until ctx is cancelled. Files already present
// when Run starts are processed too.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.touch(path, time.Time{})
	}
	w.logger.Info().Int("existing", len(existing)).Msg("inbox watching")

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isRequest(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(event.Name, time.Now())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				if _, err := w.Process(ctx, path); err != nil && !errors.Is(err, os.ErrNotExist) {
					w.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("request not accepted")
				}
			}
		}
	}
}

func isRequest(path string) bool {
	return strings.HasSuffix(path, ".json")
}

func (w *Watcher) touch(path string, at time.Time) {
	w.mu.Lock()
	w.pending[path] = at
	w.mu.Unlock()
}

// settled returns files that have not changed for the debounce interval.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// Process submits one request file and renames it according to the outcome.
// A full queue leaves the file in place to be retried.
func (w *Watcher) Process(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	req, err := decode(data)
	if err != nil {
		return "", w.reject(path, err)
	}
	if req.ImagePath, err = w.mediaPath(req.ImagePath); err != nil {
		return "", w.reject(path, err)
	}
	if req.AudioPath, err = w.mediaPath(req.AudioPath); err != nil {
		return "", w.reject(path, err)
	}

	taskID, err := w.submit.Submit(ctx, req)
	if errors.Is(err, stylist.ErrQueueFull) {
		w.touch(path, time.Now())
		return "", err
	}
	if err != nil {
		return "", w.reject(path, err)
	}

	if err := os.Rename(path, path+AcceptedSuffix); err != nil {
		w.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to mark request accepted")
	}
	w.logger.Info().Str("task_id", taskID).Str("user_id", req.UserID).Str("file", filepath.Base(path)).Msg("request accepted")
	return taskID, nil
}

// mediaPath resolves a relative media path against the inbox directory and
// refuses one that lands outside it. Absolute paths are used as given.
func (w *Watcher) mediaPath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	joined := filepath.Join(w.dir, p)
	rel, err := filepath.Rel(w.dir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("media path %q escapes the inbox directory", p)
	}
	return joined, nil
}

func decode(data []byte) (stylist.Request, error) {
	var req stylist.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, req.Validate()
}

func (w *Watcher) reject(path string, cause error) error {
	if err := os.Rename(path, path+RejectedSuffix); err != nil {
		w.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("failed to mark request rejected")
	}
	return cause
}
