// Package stylist runs fashion recommendation tasks: it builds the
// supervisor's context from a user's history, profile and media, runs the
// tool loop, and commits the exchange to the conversation store.
package stylist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/tools"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/profile"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/tasks"
)

// Fatal task errors. Each one fails the task and leaves history untouched.
var (
	ErrUploadFailure = errors.New("upload failure")
	ErrContextBuild  = errors.New("context build failure")
	ErrEmptyAnswer   = errors.New("model returned no text")
	ErrPersist       = errors.New("persist failure")
)

var (
	ErrQueueFull      = errors.New("stylist queue is full")
	ErrClosed         = errors.New("stylist service is closed")
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one user message.
type Request struct {
	UserID    string `json:"userid"`
	Text      string `json:"text"`
	ImagePath string `json:"image_path,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
}

// Validate checks the fields every request needs.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userid is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}
	return nil
}

// Result is the outcome of a completed task.
type Result struct {
	TaskID           string
	Text             string
	GroundingSources []string
	Iterations       int
}

// Options sizes the service.
type Options struct {
	DataDir     string
	Workers     int
	QueueDepth  int
	TaskTimeout time.Duration
}

// Deps are the collaborators of the service.
type Deps struct {
	Runner     tools.Runner
	Supervisor harness.AgentSpec
	Policy     *harness.Policy
	Tools      []ports.Tool
	Store      ports.ConversationStore
	Progress   ports.ProgressLog
	Uploader   ports.Uploader
	Tracker    *tasks.Tracker
	Logger     zerolog.Logger
}

type job struct {
	id  string
	req Request
}

// Service accepts tasks and runs them on a bounded worker pool.
type Service struct {
	opts Options
	deps Deps

	admit *semaphore.Weighted
	queue chan job
	pool  *pool.Pool
	done  chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	finished  chan struct{}
}

// New starts a service. Close must be called to release its workers.
func New(opts Options, deps Deps) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}
	if deps.Tracker == nil {
		deps.Tracker = tasks.NewTracker()
	}
	capacity := opts.Workers + opts.QueueDepth
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:     opts,
		deps:     deps,
		admit:    semaphore.NewWeighted(int64(capacity)),
		queue:    make(chan job, capacity),
		pool:     pool.New().WithMaxGoroutines(opts.Workers),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	go s.dispatch()
	return s
}

// Tracker exposes task status.
func (s *Service) Tracker() *tasks.Tracker { return s.deps.Tracker }

// Submit accepts a task and returns its ID without waiting for it to run.
// When every worker is busy and the queue is full it fails with ErrQueueFull.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if !s.admit.TryAcquire(1) {
		return "", ErrQueueFull
	}

	id := tasks.NewID()
	if _, err := s.deps.Tracker.Create(id, req.UserID); err != nil {
		s.admit.Release(1)
		return "", err
	}
	s.queue <- job{id: id, req: req}
	s.deps.Logger.Info().Str("task_id", id).Str("user_id", req.UserID).Msg("task accepted")
	return id, nil
}

func (s *Service) dispatch() {
	defer close(s.done)
	for j := range s.queue {
		s.pool.Go(func() {
			defer s.admit.Release(1)
			_, _ = s.execute(s.baseCtx, j.id, j.req)
		})
	}
}

// Run executes one task synchronously on the caller's goroutine.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	id := tasks.NewID()
	if _, err := s.deps.Tracker.Create(id, req.UserID); err != nil {
		return Result{}, err
	}
	return s.execute(ctx, id, req)
}

// Close stops accepting tasks, waits for accepted ones to finish and
// releases the workers. In-flight tasks are cancelled when ctx ends first.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		go func() {
			<-s.done
			s.pool.Wait()
			close(s.finished)
		}()
	})

	select {
	case <-s.finished:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-s.finished
		return ctx.Err()
	}
}

// execute is the supervisor run for one task.
func (s *Service) execute(ctx context.Context, taskID string, req Request) (res Result, err error) {
	logger := s.deps.Logger.With().Str("task_id", taskID).Str("user_id", req.UserID).Logger()
	res.TaskID = taskID

	if s.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TaskTimeout)
		defer cancel()
	}

	if uerr := s.deps.Tracker.Update(taskID, tasks.StateRunning, ""); uerr != nil {
		return res, uerr
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		if err != nil {
			logger.Error().Err(err).Msg("task failed")
			if uerr := s.deps.Tracker.Update(taskID, tasks.StateFailed, err.Error()); uerr != nil {
				logger.Warn().Err(uerr).Msg("failed to record task failure")
			}
			return
		}
		if uerr := s.deps.Tracker.Update(taskID, tasks.StateComplete, ""); uerr != nil {
			logger.Warn().Err(uerr).Msg("failed to record task completion")
		}
		logger.Info().Int("iterations", res.Iterations).Msg("task complete")
	}()

	// The log is shared per user; leave it alone while another of the
	// user's tasks is still reporting into it.
	if s.deps.Progress != nil && s.deps.Tracker.RunningForUser(req.UserID) == 1 {
		if perr := s.deps.Progress.Reset(ctx, req.UserID); perr != nil {
			logger.Warn().Err(perr).Msg("failed to reset progress log")
		}
	}
	scope := ports.NewTaskScope(taskID, req.UserID, s.progressFunc(ctx, taskID, req.UserID, logger))

	messages, err := s.buildContext(ctx, scope, req)
	if err != nil {
		return res, err
	}

	resp, err := s.deps.Runner.Run(ctx, &harness.Request{
		Agent:    s.deps.Supervisor,
		Messages: messages,
		Tools:    s.deps.Tools,
		Scope:    scope,
		Policy:   s.deps.Policy,
	})
	if err != nil {
		return res, err
	}
	res.Iterations = resp.Iterations

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return res, ErrEmptyAnswer
	}

	now := time.Now().UTC()
	if err := s.deps.Store.Append(ctx, req.UserID,
		ports.Turn{Role: ports.RoleUser, Text: req.Text, CreatedAt: now},
		ports.Turn{Role: ports.RoleModel, Text: answer, CreatedAt: now},
	); err != nil {
		return res, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	sources := scope.Grounding.List()
	if sources == nil {
		sources = []string{}
	}
	if err := s.deps.Tracker.RecordGroundingSources(taskID, sources); err != nil {
		logger.Warn().Err(err).Msg("failed to record grounding sources")
	}
	if s.deps.Progress != nil {
		if perr := s.deps.Progress.Append(ctx, req.UserID, sources); perr != nil {
			logger.Warn().Err(perr).Msg("failed to append grounding sources")
		}
	}

	res.Text = answer
	res.GroundingSources = sources
	return res, nil
}

// buildContext assembles history, profile, media and the query into the
// supervisor's initial context.
func (s *Service) buildContext(ctx context.Context, scope *ports.TaskScope, req Request) ([]ports.PromptMessage, error) {
	history, err := s.deps.Store.Load(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrContextBuild, err)
	}
	prefs, err := profile.Load(s.opts.DataDir, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", ErrContextBuild, err)
	}
	scope.Profile = prefs.Render()

	var media []ports.MediaRef
	for _, path := range []string{req.ImagePath, req.AudioPath} {
		if path == "" {
			continue
		}
		if s.deps.Uploader == nil {
			return nil, fmt.Errorf("%w: no uploader configured for %s", ErrUploadFailure, path)
		}
		ref, err := s.deps.Uploader.UploadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadFailure, err)
		}
		media = append(media, ref)
	}
	scope.Media.Add(media...)

	messages := make([]ports.PromptMessage, 0, len(history)+2)
	for _, turn := range history {
		messages = append(messages, ports.PromptMessage{Role: turn.Role, Content: turn.Text})
	}
	if scope.Profile != "" {
		messages = append(messages, ports.PromptMessage{Role: ports.RoleUser, Content: scope.Profile})
	}
	messages = append(messages, ports.PromptMessage{Role: ports.RoleUser, Content: req.Text, Media: media})
	return messages, nil
}

func (s *Service) progressFunc(ctx context.Context, taskID, userID string, logger zerolog.Logger) func(string) {
	return func(msg string) {
		s.deps.Tracker.AddMilestone(taskID, msg)
		if s.deps.Progress == nil {
			return
		}
		if err := s.deps.Progress.Append(ctx, userID, msg); err != nil {
			logger.Debug().Err(err).Str("milestone", msg).Msg("progress append failed")
		}
	}
}
