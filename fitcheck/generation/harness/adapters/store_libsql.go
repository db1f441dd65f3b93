package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// LibSQLConversationStore implements ConversationStore on the chat_turns
// table. It works with any database/sql SQLite dialect driver.
type LibSQLConversationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLConversationStore creates a new SQL conversation store. The schema
// is expected to be migrated already.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{
		db:  db,
		now: time.Now,
	}
}

// Load returns every turn of the user in sequence order.
func (s *LibSQLConversationStore) Load(ctx context.Context, userID string) ([]ports.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, created_at FROM chat_turns
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			role    string
			text    string
			created int64
		)
		if err := rows.Scan(&role, &text, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, ports.Turn{Role: ports.Role(role), Text: text, CreatedAt: time.UnixMilli(created)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	return turns, nil
}

// Append inserts all turns in one transaction with consecutive sequence numbers.
func (s *LibSQLConversationStore) Append(ctx context.Context, userID string, turns ...ports.Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_turns WHERE user_id = ?`, userID,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	for i, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_turns (user_id, seq, role, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			userID, next+int64(i), string(t.Role), t.Text, created.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
