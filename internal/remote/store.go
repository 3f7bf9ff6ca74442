// ABOUTME: Remote store contract consumed by the facade and migration engine
// ABOUTME: Insert/count/list operations plus an authentication probe
package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/pollpilot/pollchat/internal/models"
)

// Store is the hosted-backend surface the migration engine and the
// authenticated facade path depend on. Implementations: CharmStore
// (charm cloud KV) and MemoryStore (tests, dry runs).
type Store interface {
	// CurrentUser returns the authenticated user id, or empty when no
	// user is signed in. An error means the auth check itself failed.
	CurrentUser(ctx context.Context) (string, error)

	// RegisterGuestSession records a minted guest session id so rows
	// uploaded before sign-in can be associated with the account later.
	RegisterGuestSession(ctx context.Context, sessionID string) error

	InsertConversations(ctx context.Context, rows []models.Conversation) error
	InsertMessages(ctx context.Context, rows []models.Message) error

	CountConversations(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)

	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// DeleteConversations and DeleteMessages exist for migration rollback
	// and for authenticated-mode deletes.
	DeleteConversations(ctx context.Context, ids []string) error
	DeleteMessages(ctx context.Context, conversationID string, ids []string) error
}

// BatchError reports a failed batch insert with enough context to retry:
// the table written and the ids that were in the failed batch.
type BatchError struct {
	Table string
	IDs   []string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("insert batch into %s failed (%d rows: %s): %v",
		e.Table, len(e.IDs), strings.Join(e.IDs, ", "), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
