// ABOUTME: Migration-specific error types
// ABOUTME: All pipeline failures are caught and folded into the migration result
package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled means the user aborted the migration; observed at the
	// next batch boundary.
	ErrCancelled = errors.New("migration cancelled")

	// ErrAlreadyRun means this engine instance has already executed.
	// Engines are single-use; construct a new one to retry.
	ErrAlreadyRun = errors.New("migration already run on this engine")
)

// VerificationError reports post-upload remote counts falling short of
// what should have been migrated. Pre-existing remote rows are tolerated
// (counts may exceed expectations); undercounting is not.
type VerificationError struct {
	ExpectedConversations int
	ActualConversations   int
	ExpectedMessages      int
	ActualMessages        int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: conversations %d/%d, messages %d/%d (actual/expected)",
		e.ActualConversations, e.ExpectedConversations, e.ActualMessages, e.ExpectedMessages)
}
