package harnessports

import (
	"strings"
	"sync"
)

// TaskScope carries the state owned by a single task. Tools receive it on
// every invocation instead of reaching for shared globals.
type TaskScope struct {
	TaskID    string
	UserID    string
	Profile   string // rendered user profile, may be empty
	Media     *MediaRegistry
	Grounding *SourceSet

	progress func(msg string)
}

// NewTaskScope creates the scope for one task. progress may be nil.
func NewTaskScope(taskID, userID string, progress func(msg string)) *TaskScope {
	return &TaskScope{
		TaskID:    taskID,
		UserID:    userID,
		Media:     &MediaRegistry{},
		Grounding: &SourceSet{},
		progress:  progress,
	}
}

// Progress reports an advisory milestone. It never blocks the caller on
// delivery failures.
func (s *TaskScope) Progress(msg string) {
	if s == nil || s.progress == nil {
		return
	}
	s.progress(msg)
}

// MediaRegistry is the ordered list of media handles a task has uploaded.
// Index 0 is the user's primary image when one was supplied.
type MediaRegistry struct {
	mu   sync.Mutex
	refs []MediaRef
}

// Add appends refs and returns the index of the first one added.
func (r *MediaRegistry) Add(refs ...MediaRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := len(r.refs)
	r.refs = append(r.refs, refs...)
	return first
}

// All returns a copy of every registered handle.
func (r *MediaRegistry) All() []MediaRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MediaRef(nil), r.refs...)
}

// Get returns the handle at index i.
func (r *MediaRegistry) Get(i int) (MediaRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.refs) {
		return MediaRef{}, false
	}
	return r.refs[i], true
}

// Find returns the first handle whose MIME type starts with prefix.
func (r *MediaRegistry) Find(prefix string) (MediaRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.refs {
		if strings.HasPrefix(ref.MIMEType, prefix) {
			return ref, true
		}
	}
	return MediaRef{}, false
}

func (r *MediaRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

// SourceSet is an insertion-ordered set of grounding URLs.
type SourceSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
	urls []string
}

func (s *SourceSet) Add(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := s.seen[u]; ok {
			continue
		}
		s.seen[u] = struct{}{}
		s.urls = append(s.urls, u)
	}
}

func (s *SourceSet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}
