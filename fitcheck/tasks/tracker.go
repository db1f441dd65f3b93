// Package tasks tracks the lifecycle of stylist tasks. Every task owns its
// status record; there is no shared "current task" slot.
package tasks

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of a task.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrExists            = errors.New("task already exists")
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// Status is a snapshot of one task.
type Status struct {
	ID               string
	UserID           string
	State            State
	Error            string
	GroundingSources []string
	Milestones       []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the task has finished.
func (s Status) Terminal() bool {
	return s.State == StateComplete || s.State == StateFailed
}

// NewID returns a fresh task identifier.
func NewID() string {
	return uuid.NewString()
}

// Tracker stores task status keyed by task ID.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*Status
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*Status), now: time.Now}
}

// Create registers a task in the Idle state.
func (t *Tracker) Create(taskID, userID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[taskID]; ok {
		return Status{}, fmt.Errorf("%w: %s", ErrExists, taskID)
	}
	now := t.now()
	s := &Status{ID: taskID, UserID: userID, State: StateIdle, CreatedAt: now, UpdatedAt: now}
	t.tasks[taskID] = s
	return s.clone(), nil
}

// Update moves a task to state. Only Idle→Running and Running→Complete|Failed
// are permitted; errMsg is kept for Failed.
func (t *Tracker) Update(taskID string, state State, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if !allowed(s.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, state)
	}
	s.State = state
	if state == StateFailed {
		s.Error = errMsg
	}
	s.UpdatedAt = t.now()
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRunning
	case StateRunning:
		return to == StateComplete || to == StateFailed
	}
	return false
}

// RecordGroundingSources replaces the task's grounding URLs.
func (t *Tracker) RecordGroundingSources(taskID string, urls []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	s.GroundingSources = append([]string(nil), urls...)
	s.UpdatedAt = t.now()
	return nil
}

// AddMilestone appends a progress message. Unknown tasks are ignored since
// milestones are advisory.
func (t *Tracker) AddMilestone(taskID, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.tasks[taskID]; ok {
		s.Milestones = append(s.Milestones, msg)
		s.UpdatedAt = t.now()
	}
}

// Get returns a snapshot of the task.
func (t *Tracker) Get(taskID string) (Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.tasks[taskID]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return s.clone(), nil
}

// LatestForUser returns the most recently created task of a user.
func (t *Tracker) LatestForUser(userID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var latest *Status
	for _, s := range t.tasks {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return Status{}, false
	}
	return latest.clone(), true
}

// RunningForUser counts the user's tasks currently in the Running state.
func (t *Tracker) RunningForUser(userID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.tasks {
		if s.UserID == userID && s.State == StateRunning {
			n++
		}
	}
	return n
}

// Prune drops terminal tasks last updated before cutoff and returns how many
// were removed.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, s := range t.tasks {
		if s.Terminal() && s.UpdatedAt.Before(cutoff) {
			delete(t.tasks, id)
			n++
		}
	}
	return n
}

func (s *Status) clone() Status {
	c := *s
	c.GroundingSources = append([]string(nil), s.GroundingSources...)
	c.Milestones = append([]string(nil), s.Milestones...)
	return c
}
