// ABOUTME: Compressed, quota-bounded, expiring local persistence for conversations
// ABOUTME: All data lives in one gzip+JSON blob file under the pollchat data dir
package localstore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/validate"
)

// SchemaVersion is the current on-disk blob schema version
const SchemaVersion = 1

// blobFile is the single namespaced storage slot for a store instance
const blobFile = "conversations.json.gz"

// Metadata describes one local store instance
type Metadata struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsGuest      bool      `json:"is_guest"`
}

// blob is the full serialized store contents
type blob struct {
	Conversations map[string]models.Conversation `json:"conversations"`
	Messages      map[string][]models.Message    `json:"messages"`
	Metadata      *Metadata                      `json:"metadata"`
}

// Export is the full store snapshot handed to the migration engine
type Export struct {
	Conversations []models.Conversation
	Messages      map[string][]models.Message
}

// QuotaInfo reports local conversation usage against the active ceiling.
// Limit is UnlimitedConversations (-1) when no ceiling applies.
type QuotaInfo struct {
	Used    int
	Limit   int
	IsGuest bool
}

// UnlimitedConversations is the sentinel limit meaning "no ceiling"
const UnlimitedConversations = -1

// Store is the local conversation store. Every operation takes the store
// lock and performs one read-modify-write pass over the blob file.
type Store struct {
	dir        string
	guestLimit int
	retention  time.Duration
	isGuest    bool

	// now is a clock hook for expiry tests
	now func() time.Time

	mu sync.Mutex
}

// NewStore creates a store rooted at the XDG data directory.
// Respects XDG_DATA_HOME environment variable override for testing.
func NewStore(guestLimit int, retention time.Duration, isGuest bool) (*Store, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return NewStoreAt(filepath.Join(dataHome, "pollchat"), guestLimit, retention, isGuest)
}

// NewStoreAt creates a store rooted at an explicit directory
func NewStoreAt(dir string, guestLimit int, retention time.Duration, isGuest bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &Store{
		dir:        dir,
		guestLimit: guestLimit,
		retention:  retention,
		isGuest:    isGuest,
		now:        time.Now,
	}, nil
}

// Dir returns the store's data directory
func (s *Store) Dir() string {
	return s.dir
}

// Initialize creates the metadata block if none exists. Idempotent: an
// existing blob is never overwritten.
func (s *Store) Initialize(isGuest bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isGuest = isGuest
	if _, err := os.Stat(s.blobPath()); err == nil {
		return nil
	}
	b := s.emptyBlob(isGuest)
	return s.write(b)
}

// CreateConversation assigns a new id and timestamps, persists the
// conversation, then reads it back to confirm the write landed.
func (s *Store) CreateConversation(partial models.Conversation) (*models.Conversation, error) {
	conv := models.NewConversation(partial)
	if conv.Title == "" {
		conv.Title = "New conversation"
	}

	if err := s.SaveConversation(conv); err != nil {
		return nil, err
	}

	// Re-read to verify the write succeeded
	got, err := s.GetConversation(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("verifying conversation %s: %w", conv.ID, err)
	}
	if got == nil {
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, ErrCreationVerificationFailed)
	}
	return got, nil
}

// SaveConversation validates and upserts a conversation. A brand-new
// conversation in guest mode is rejected once the guest ceiling is reached;
// updates to existing conversations never fail on quota grounds.
func (s *Store) SaveConversation(conv *models.Conversation) error {
	if r := validate.Conversation(conv); !r.Valid {
		return &ValidationError{Issues: r.Errors}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return err
	}

	_, isUpdate := b.Conversations[conv.ID]
	if b.Metadata.IsGuest && !isUpdate && len(b.Conversations) >= s.guestLimit {
		return &QuotaExceededError{Used: len(b.Conversations), Limit: s.guestLimit, Guest: true}
	}

	if s.expired(b) {
		s.clearLocked()
		return ErrDataExpired
	}

	b.Conversations[conv.ID] = *conv
	b.Metadata.LastAccessed = s.now().UTC()
	return s.write(b)
}

// SaveMessages validates and appends messages to a conversation's list.
// Messages are never replaced; the parent conversation must already exist.
func (s *Store) SaveMessages(conversationID string, msgs []models.Message) error {
	var issues []string
	for i := range msgs {
		if r := validate.Message(&msgs[i]); !r.Valid {
			for _, e := range r.Errors {
				issues = append(issues, fmt.Sprintf("message %s: %s", msgs[i].ID, e))
			}
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return err
	}

	if s.expired(b) {
		s.clearLocked()
		return ErrDataExpired
	}

	conv, ok := b.Conversations[conversationID]
	if !ok {
		known := make([]string, 0, len(b.Conversations))
		for id := range b.Conversations {
			known = append(known, id)
		}
		return &ConversationNotFoundError{
			ConversationID:    conversationID,
			KnownIDs:          known,
			ConversationCount: len(b.Conversations),
			MessageListCount:  len(b.Messages),
		}
	}

	b.Messages[conversationID] = append(b.Messages[conversationID], msgs...)
	conv.MessageCount = len(b.Messages[conversationID])
	if conv.FirstMessage == "" && len(msgs) > 0 {
		conv.FirstMessage = models.Excerpt(msgs[0].Content)
	}
	conv.Touch()
	b.Conversations[conversationID] = conv
	b.Metadata.LastAccessed = s.now().UTC()
	return s.write(b)
}

// GetConversations returns all stored conversations. An expired store is
// cleared and an empty list returned.
func (s *Store) GetConversations() ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.expired(b) {
		s.clearLocked()
		return []models.Conversation{}, nil
	}

	out := make([]models.Conversation, 0, len(b.Conversations))
	for _, c := range b.Conversations {
		out = append(out, c)
	}
	if len(out) > 0 {
		s.touch(b)
	}
	return out, nil
}

// GetConversation returns one conversation by id, or nil if absent
func (s *Store) GetConversation(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.expired(b) {
		s.clearLocked()
		return nil, nil
	}

	c, ok := b.Conversations[id]
	if !ok {
		return nil, nil
	}
	s.touch(b)
	return &c, nil
}

// GetMessages returns the message list for a conversation, oldest first
func (s *Store) GetMessages(conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.expired(b) {
		s.clearLocked()
		return []models.Message{}, nil
	}

	msgs := b.Messages[conversationID]
	if len(msgs) > 0 {
		s.touch(b)
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// GetConversationWithMessages returns a conversation and its transcript
func (s *Store) GetConversationWithMessages(id string) (*models.Conversation, []models.Message, error) {
	conv, err := s.GetConversation(id)
	if err != nil || conv == nil {
		return conv, nil, err
	}
	msgs, err := s.GetMessages(id)
	if err != nil {
		return conv, nil, err
	}
	return conv, msgs, nil
}

// DeleteConversation removes a conversation and its messages.
// Deleting an absent conversation is a no-op, not an error.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return err
	}
	if s.expired(b) {
		s.clearLocked()
		return nil
	}

	if _, ok := b.Conversations[id]; !ok {
		return nil
	}
	delete(b.Conversations, id)
	delete(b.Messages, id)
	b.Metadata.LastAccessed = s.now().UTC()
	return s.write(b)
}

// ClearAll wipes the entire storage slot. Migration markers are separate
// flat keys and survive a clear.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

// GetQuotaInfo reports conversation usage. If the underlying blob is
// unreadable this degrades to a safe guest default instead of failing.
func (s *Store) GetQuotaInfo() QuotaInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return QuotaInfo{Used: 0, Limit: s.guestLimit, IsGuest: true}
	}
	if s.expired(b) {
		s.clearLocked()
		return QuotaInfo{Used: 0, Limit: s.limitFor(b.Metadata.IsGuest), IsGuest: b.Metadata.IsGuest}
	}
	return QuotaInfo{
		Used:    len(b.Conversations),
		Limit:   s.limitFor(b.Metadata.IsGuest),
		IsGuest: b.Metadata.IsGuest,
	}
}

// ExportForMigration returns the full store snapshot, or nil when the
// store holds no conversations.
func (s *Store) ExportForMigration() (*Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.expired(b) {
		s.clearLocked()
		return nil, nil
	}
	if len(b.Conversations) == 0 {
		return nil, nil
	}

	exp := &Export{
		Conversations: make([]models.Conversation, 0, len(b.Conversations)),
		Messages:      make(map[string][]models.Message, len(b.Messages)),
	}
	for _, c := range b.Conversations {
		exp.Conversations = append(exp.Conversations, c)
	}
	for id, msgs := range b.Messages {
		cp := make([]models.Message, len(msgs))
		copy(cp, msgs)
		exp.Messages[id] = cp
	}
	return exp, nil
}

// Metadata returns a copy of the store metadata, or nil if uninitialized
func (s *Store) Metadata() (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.blobPath()); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	b, err := s.load()
	if err != nil {
		return nil, err
	}
	meta := *b.Metadata
	return &meta, nil
}

// limitFor returns the conversation ceiling for the given mode
func (s *Store) limitFor(isGuest bool) int {
	if isGuest {
		return s.guestLimit
	}
	return UnlimitedConversations
}

// Internal persistence mechanics

func (s *Store) blobPath() string {
	return filepath.Join(s.dir, blobFile)
}

func (s *Store) emptyBlob(isGuest bool) *blob {
	now := s.now().UTC()
	return &blob{
		Conversations: map[string]models.Conversation{},
		Messages:      map[string][]models.Message{},
		Metadata: &Metadata{
			Version:      SchemaVersion,
			CreatedAt:    now,
			LastAccessed: now,
			ExpiresAt:    now.Add(s.retention),
			IsGuest:      isGuest,
		},
	}
}

// load reads and decompresses the blob. A missing file yields a fresh
// empty blob. Any decode failure or a structurally incomplete blob is
// corruption: the raw file is deleted and ErrDataCorruption returned.
func (s *Store) load() (*blob, error) {
	raw, err := os.ReadFile(s.blobPath())
	if errors.Is(err, os.ErrNotExist) {
		return s.emptyBlob(s.isGuest), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, s.corrupt("gzip header", err)
	}
	data, err := io.ReadAll(gr)
	if cerr := gr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, s.corrupt("decompress", err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, s.corrupt("unmarshal", err)
	}
	if b.Metadata == nil || b.Conversations == nil || b.Messages == nil {
		return nil, s.corrupt("structure", errors.New("missing required top-level fields"))
	}
	return &b, nil
}

// corrupt deletes the raw blob and reports corruption. Caller holds s.mu.
func (s *Store) corrupt(stage string, cause error) error {
	slog.Warn("local store blob unreadable, clearing", "stage", stage, "error", cause)
	_ = os.Remove(s.blobPath())
	return fmt.Errorf("%s: %v: %w", stage, cause, ErrDataCorruption)
}

// write serializes, compresses, and persists the blob. ENOSPC is reported
// as the platform storage quota, distinct from a generic save error.
func (s *Store) write(b *blob) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal blob: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	if err := os.WriteFile(s.blobPath(), buf.Bytes(), 0644); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("writing blob: %w", ErrStorageQuotaExceeded)
		}
		return fmt.Errorf("writing blob: %w", err)
	}
	return nil
}

// expired reports whether the retention window has passed. Checked lazily
// on every operation; there is no background timer.
func (s *Store) expired(b *blob) bool {
	return s.now().UTC().After(b.Metadata.ExpiresAt)
}

// clearLocked wipes the storage slot. Caller holds s.mu.
func (s *Store) clearLocked() {
	_ = os.Remove(s.blobPath())
}

// touch updates last-accessed after a successful non-empty read.
// Failures are ignored: a stale access time never fails a read.
func (s *Store) touch(b *blob) {
	b.Metadata.LastAccessed = s.now().UTC()
	_ = s.write(b)
}
