// ABOUTME: Error taxonomy for the local conversation store
// ABOUTME: Sentinel and typed errors callers can match with errors.Is and errors.As
package localstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDataExpired means the retention window has passed; the store was
	// cleared as a side effect and the caller should start fresh.
	ErrDataExpired = errors.New("local store data expired")

	// ErrDataCorruption means the persisted blob was unreadable; the raw
	// blob was deleted so the store is usable afterward, but the lost data
	// is unrecoverable.
	ErrDataCorruption = errors.New("local store data corrupted")

	// ErrStorageQuotaExceeded means the platform storage is full
	ErrStorageQuotaExceeded = errors.New("platform storage quota exceeded")

	// ErrCreationVerificationFailed means a created conversation could not
	// be read back after the write.
	ErrCreationVerificationFailed = errors.New("conversation creation verification failed")
)

// ValidationError reports every schema violation found in a record
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Issues, "; "))
}

// QuotaExceededError reports the guest conversation ceiling being hit
type QuotaExceededError struct {
	Used  int
	Limit int
	Guest bool
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("conversation quota exceeded: %d of %d used (guest=%v)", e.Used, e.Limit, e.Guest)
}

// ConversationNotFoundError reports a message write against a missing
// conversation, with diagnostic context about what the store does hold.
type ConversationNotFoundError struct {
	ConversationID    string
	KnownIDs          []string
	ConversationCount int
	MessageListCount  int
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation %s not found before message save (%d conversations, %d message lists, known: %s)",
		e.ConversationID, e.ConversationCount, e.MessageListCount, strings.Join(e.KnownIDs, ", "))
}
