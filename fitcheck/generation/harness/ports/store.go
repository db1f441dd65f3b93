package harnessports

import (
	"context"
	"time"
)

// Turn is one persisted conversational exchange.
type Turn struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// ConversationStore persists per-user chat history. Append is atomic: either
// every turn is stored or none is.
type ConversationStore interface {
	Load(ctx context.Context, userID string) ([]Turn, error)
	Append(ctx context.Context, userID string, turns ...Turn) error
}

// ProgressLog records user-visible progress entries for polling clients.
type ProgressLog interface {
	Reset(ctx context.Context, userID string) error
	Append(ctx context.Context, userID string, entry any) error
}
