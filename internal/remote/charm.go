// ABOUTME: Charm KV-backed remote store with automatic SSH key auth
// ABOUTME: Conversations and messages are JSON rows under prefixed keys
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/util"
)

// Key prefixes for different row types
const (
	ConversationPrefix = "conversation:"
	MessagePrefix      = "message:"
	SessionPrefix      = "session:"
)

// Config holds charm store configuration
type Config struct {
	Host     string
	DBName   string
	AutoSync bool
}

// DefaultConfig returns default configuration for the charm store
func DefaultConfig() *Config {
	host := os.Getenv("CHARM_HOST")
	if host == "" {
		host = "cloud.charm.sh"
	}
	return &Config{
		Host:     host,
		DBName:   "pollchat",
		AutoSync: true,
	}
}

// CharmStore implements Store on top of charm cloud KV
type CharmStore struct {
	kv     *kv.KV
	config *Config
	mu     sync.Mutex
}

// NewCharmStore opens the charm KV database, retrying the connection with
// jittered exponential backoff before giving up.
func NewCharmStore(ctx context.Context, cfg *Config) (*CharmStore, error) {
	// Set CHARM_HOST before opening KV
	os.Setenv("CHARM_HOST", cfg.Host)

	var db *kv.KV
	err := util.Retry(ctx, 3, util.ExponentialBackoff(500*time.Millisecond), func() error {
		var openErr error
		db, openErr = kv.OpenWithDefaults(cfg.DBName)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	s := &CharmStore{kv: db, config: cfg}

	// Pull remote data on startup
	if cfg.AutoSync {
		_ = db.Sync()
	}
	return s, nil
}

// Close closes the KV database
func (s *CharmStore) Close() error {
	if s.kv != nil {
		err := s.kv.Close()
		s.kv = nil
		return err
	}
	return nil
}

// syncIfEnabled syncs to cloud after writes
func (s *CharmStore) syncIfEnabled() {
	if s.config.AutoSync {
		_ = s.kv.Sync()
	}
}

// CurrentUser returns the charm user ID for the linked SSH key
func (s *CharmStore) CurrentUser(ctx context.Context) (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	id, err := cc.ID()
	if err != nil {
		return "", fmt.Errorf("failed to fetch charm user id: %w", err)
	}
	return id, nil
}

// RegisterGuestSession records a guest session id under the session prefix
func (s *CharmStore) RegisterGuestSession(ctx context.Context, sessionID string) error {
	row := map[string]string{
		"session_id":    sessionID,
		"registered_at": time.Now().UTC().Format(time.RFC3339),
	}
	return s.setJSON(SessionPrefix+sessionID, row)
}

// InsertConversations writes a batch of conversation rows
func (s *CharmStore) InsertConversations(ctx context.Context, rows []models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return &BatchError{Table: "conversations", IDs: conversationIDs(rows), Err: err}
		}
		if err := s.kv.Set([]byte(ConversationPrefix+row.ID), data); err != nil {
			return &BatchError{Table: "conversations", IDs: conversationIDs(rows), Err: err}
		}
	}
	s.syncIfEnabled()
	return nil
}

// InsertMessages writes a batch of message rows
func (s *CharmStore) InsertMessages(ctx context.Context, rows []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return &BatchError{Table: "conversation_messages", IDs: messageIDs(rows), Err: err}
		}
		key := MessagePrefix + row.ConversationID + ":" + row.ID
		if err := s.kv.Set([]byte(key), data); err != nil {
			return &BatchError{Table: "conversation_messages", IDs: messageIDs(rows), Err: err}
		}
	}
	s.syncIfEnabled()
	return nil
}

// CountConversations counts conversation rows
func (s *CharmStore) CountConversations(ctx context.Context) (int, error) {
	keys, err := s.listKeys(ConversationPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// CountMessages counts message rows across all conversations
func (s *CharmStore) CountMessages(ctx context.Context) (int, error) {
	keys, err := s.listKeys(MessagePrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ListConversations returns all conversation rows
func (s *CharmStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	keys, err := s.listKeys(ConversationPrefix)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("failed to get key %s: %w", key, err)
		}
		var conv models.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", key, err)
		}
		out = append(out, conv)
	}
	return out, nil
}

// ListMessages returns the message rows for one conversation
func (s *CharmStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	keys, err := s.listKeys(MessagePrefix + conversationID + ":")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("failed to get key %s: %w", key, err)
		}
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message %s: %w", key, err)
		}
		out = append(out, msg)
	}
	sortMessagesByTimestamp(out)
	return out, nil
}

// DeleteConversations removes conversation rows by id
func (s *CharmStore) DeleteConversations(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if err := s.kv.Delete([]byte(ConversationPrefix + id)); err != nil {
			return fmt.Errorf("failed to delete conversation %s: %w", id, err)
		}
	}
	s.syncIfEnabled()
	return nil
}

// DeleteMessages removes message rows for a conversation by id
func (s *CharmStore) DeleteMessages(ctx context.Context, conversationID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		key := MessagePrefix + conversationID + ":" + id
		if err := s.kv.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", id, err)
		}
	}
	s.syncIfEnabled()
	return nil
}

func (s *CharmStore) setJSON(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := s.kv.Set([]byte(key), data); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	s.syncIfEnabled()
	return nil
}

func (s *CharmStore) listKeys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var result []string
	for _, key := range keys {
		keyStr := string(key)
		if strings.HasPrefix(keyStr, prefix) {
			result = append(result, keyStr)
		}
	}
	return result, nil
}

func conversationIDs(rows []models.Conversation) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func messageIDs(rows []models.Message) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}
