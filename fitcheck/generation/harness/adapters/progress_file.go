package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	internal "github.com/ZanzyTHEbar/fitcheck/fitcheck"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// FileProgressLog appends progress entries to <root>/<user>/responses.json,
// a JSON array polled by the front end. Entries are milestone strings; a
// successful task ends with the list of grounding URLs.
type FileProgressLog struct {
	root  string
	locks keyedMutex
}

func NewFileProgressLog(root string) *FileProgressLog {
	return &FileProgressLog{root: root}
}

func (p *FileProgressLog) path(userID string) (string, error) {
	dir, err := internal.UserDir(p.root, userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, internal.ResponsesFile), nil
}

// Reset starts a fresh log for a new task.
func (p *FileProgressLog) Reset(ctx context.Context, userID string) error {
	path, err := p.path(userID)
	if err != nil {
		return err
	}
	unlock := p.locks.lock(userID)
	defer unlock()
	return writeJSONAtomic(path, []json.RawMessage{})
}

func (p *FileProgressLog) Append(ctx context.Context, userID string, entry any) error {
	path, err := p.path(userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode progress entry: %w", err)
	}

	unlock := p.locks.lock(userID)
	defer unlock()

	var entries []json.RawMessage
	if _, err := readJSON(path, &entries); err != nil {
		return err
	}
	entries = append(entries, raw)
	return writeJSONAtomic(path, entries)
}

// Entries returns the raw log, oldest first.
func (p *FileProgressLog) Entries(ctx context.Context, userID string) ([]json.RawMessage, error) {
	path, err := p.path(userID)
	if err != nil {
		return nil, err
	}
	unlock := p.locks.lock(userID)
	defer unlock()

	var entries []json.RawMessage
	if _, err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ ports.ProgressLog = (*FileProgressLog)(nil)
