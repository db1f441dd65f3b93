package adapters

import (
	"context"
	"fmt"
	"path/filepath"

	internal "github.com/ZanzyTHEbar/fitcheck/fitcheck"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// FileConversationStore keeps each user's history in
// <root>/<user>/chat_history.json as a JSON array of single-key objects,
// {"user": "..."} or {"model": "..."}.
type FileConversationStore struct {
	root  string
	locks keyedMutex
}

// NewFileConversationStore creates a store rooted at the per-user data directory.
func NewFileConversationStore(root string) *FileConversationStore {
	return &FileConversationStore{root: root}
}

type historyEntry map[string]string

func (s *FileConversationStore) path(userID string) (string, error) {
	dir, err := internal.UserDir(s.root, userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, internal.HistoryFile), nil
}

// Load returns the user's history, oldest first. A missing file is an empty history.
func (s *FileConversationStore) Load(ctx context.Context, userID string) ([]ports.Turn, error) {
	path, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	entries, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return entriesToTurns(entries), nil
}

// Append adds turns under the user's lock with a read-modify-write of the
// file, so concurrent appenders never lose each other's entries.
func (s *FileConversationStore) Append(ctx context.Context, userID string, turns ...ports.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	path, err := s.path(userID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	entries, err := s.read(path)
	if err != nil {
		return err
	}
	for _, t := range turns {
		if t.Role != ports.RoleUser && t.Role != ports.RoleModel {
			return fmt.Errorf("unsupported turn role %q", t.Role)
		}
		entries = append(entries, historyEntry{string(t.Role): t.Text})
	}
	return writeJSONAtomic(path, entries)
}

func (s *FileConversationStore) read(path string) ([]historyEntry, error) {
	var entries []historyEntry
	if _, err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// entriesToTurns expands entries in file order. An entry carrying both keys
// yields the user turn first.
func entriesToTurns(entries []historyEntry) []ports.Turn {
	turns := make([]ports.Turn, 0, len(entries))
	for _, e := range entries {
		if text, ok := e[string(ports.RoleUser)]; ok {
			turns = append(turns, ports.Turn{Role: ports.RoleUser, Text: text})
		}
		if text, ok := e[string(ports.RoleModel)]; ok {
			turns = append(turns, ports.Turn{Role: ports.RoleModel, Text: text})
		}
	}
	return turns
}

var _ ports.ConversationStore = (*FileConversationStore)(nil)
