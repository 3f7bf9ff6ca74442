// ABOUTME: In-memory Store implementation for tests and dry-run migrations
// ABOUTME: Supports scripted failures to exercise retry and rollback paths
package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/pollpilot/pollchat/internal/models"
)

// MemoryStore is an in-memory Store. The Fail* fields script failures:
// each counts down per call, failing while positive. User and AuthErr
// control the auth probe.
type MemoryStore struct {
	mu sync.Mutex

	User    string
	AuthErr error

	Sessions      map[string]bool
	Conversations map[string]models.Conversation
	Messages      map[string][]models.Message

	FailInsertConversations int
	FailInsertMessages      int
	FailCounts              int
	InsertErr               error

	insertConvCalls int
	insertMsgCalls  int
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Sessions:      make(map[string]bool),
		Conversations: make(map[string]models.Conversation),
		Messages:      make(map[string][]models.Message),
	}
}

// CurrentUser returns the configured user id
func (s *MemoryStore) CurrentUser(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AuthErr != nil {
		return "", s.AuthErr
	}
	return s.User, nil
}

// RegisterGuestSession records the session id
func (s *MemoryStore) RegisterGuestSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions[sessionID] = true
	return nil
}

// InsertConversations stores a batch, honoring scripted failures
func (s *MemoryStore) InsertConversations(ctx context.Context, rows []models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertConvCalls++
	if s.FailInsertConversations > 0 {
		s.FailInsertConversations--
		return &BatchError{Table: "conversations", IDs: conversationIDs(rows), Err: s.failErr()}
	}
	for _, row := range rows {
		s.Conversations[row.ID] = row
	}
	return nil
}

// InsertMessages stores a batch, honoring scripted failures
func (s *MemoryStore) InsertMessages(ctx context.Context, rows []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertMsgCalls++
	if s.FailInsertMessages > 0 {
		s.FailInsertMessages--
		return &BatchError{Table: "conversation_messages", IDs: messageIDs(rows), Err: s.failErr()}
	}
	for _, row := range rows {
		s.Messages[row.ConversationID] = append(s.Messages[row.ConversationID], row)
	}
	return nil
}

// CountConversations counts stored conversation rows
func (s *MemoryStore) CountConversations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCounts > 0 {
		s.FailCounts--
		return 0, s.failErr()
	}
	return len(s.Conversations), nil
}

// CountMessages counts stored message rows
func (s *MemoryStore) CountMessages(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCounts > 0 {
		s.FailCounts--
		return 0, s.failErr()
	}
	n := 0
	for _, msgs := range s.Messages {
		n += len(msgs)
	}
	return n, nil
}

// ListConversations returns all stored conversations
func (s *MemoryStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListMessages returns stored messages for a conversation, oldest first
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.Messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	sortMessagesByTimestamp(out)
	return out, nil
}

// DeleteConversations removes conversation rows by id
func (s *MemoryStore) DeleteConversations(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.Conversations, id)
	}
	return nil
}

// DeleteMessages removes message rows by id
func (s *MemoryStore) DeleteMessages(ctx context.Context, conversationID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.Messages[conversationID][:0]
	for _, m := range s.Messages[conversationID] {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(s.Messages, conversationID)
	} else {
		s.Messages[conversationID] = kept
	}
	return nil
}

// InsertCalls reports how many insert calls were made, for test assertions
func (s *MemoryStore) InsertCalls() (conversations, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertConvCalls, s.insertMsgCalls
}

func (s *MemoryStore) failErr() error {
	if s.InsertErr != nil {
		return s.InsertErr
	}
	return errScripted
}

var errScripted = &scriptedError{}

type scriptedError struct{}

func (*scriptedError) Error() string { return "scripted failure" }

// sortMessagesByTimestamp orders messages oldest first, ties by id
func sortMessagesByTimestamp(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
