// ABOUTME: Storage facade routing between the local store and the remote store
// ABOUTME: Selects a provider by auth state, caches reads, and auto-migrates on sign-in
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pollpilot/pollchat/internal/config"
	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/migration"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/remote"
	"github.com/pollpilot/pollchat/internal/validate"
)

// Provider names reported by Provider()
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Facade is the single entry point for conversation storage. Reads and
// writes go to the remote store when a user is signed in and a remote
// adapter is configured, and to the local store otherwise. On the first
// signed-in operation any unmigrated local data is migrated automatically.
type Facade struct {
	local  *localstore.Store
	remote remote.Store // nil when no remote backend is configured
	cfg    config.Config

	flight singleflight.Group
	cache  *listCache

	mu               sync.Mutex
	authUser         string
	authCheckedAt    time.Time
	migrateAttemptAt time.Time
}

// New builds a facade over the given stores. remoteStore may be nil for
// guest-only deployments; every operation then uses the local store.
func New(local *localstore.Store, remoteStore remote.Store, cfg config.Config) *Facade {
	return &Facade{
		local:  local,
		remote: remoteStore,
		cfg:    cfg,
		cache:  newListCache(cfg.CacheStaleAfter, cfg.CacheGCAfter),
	}
}

// Provider reports which backend the next operation would use
func (f *Facade) Provider(ctx context.Context) string {
	return f.resolveProvider(ctx)
}

// resolveProvider picks the backend for this operation. Remote requires a
// configured adapter, a signed-in user, and no pending migration. A failed
// auto-migration falls back to local so no data is ever stranded.
func (f *Facade) resolveProvider(ctx context.Context) string {
	if f.remote == nil {
		return ProviderLocal
	}
	user := f.currentUser(ctx)
	if user == "" {
		return ProviderLocal
	}
	if migration.IsMigrationNeeded(f.local) {
		f.autoMigrate(ctx)
		if migration.IsMigrationNeeded(f.local) {
			return ProviderLocal
		}
	}
	return ProviderRemote
}

// currentUser returns the signed-in user id, cached briefly so that every
// read does not become an auth round trip. Auth failures read as guest.
func (f *Facade) currentUser(ctx context.Context) string {
	f.mu.Lock()
	if time.Since(f.authCheckedAt) < f.cfg.CacheStaleAfter {
		user := f.authUser
		f.mu.Unlock()
		return user
	}
	f.mu.Unlock()

	v, _, _ := f.flight.Do("auth", func() (interface{}, error) {
		user, err := f.remote.CurrentUser(ctx)
		if err != nil {
			slog.Debug("auth check failed, treating as guest", "error", err)
			user = ""
		}
		f.mu.Lock()
		f.authUser = user
		f.authCheckedAt = time.Now()
		f.mu.Unlock()
		return user, nil
	})
	return v.(string)
}

// autoMigrate runs one migration attempt with the configured settings.
// Concurrent callers share a single run; repeated failures are retried at
// most once per staleness window.
func (f *Facade) autoMigrate(ctx context.Context) {
	f.mu.Lock()
	if time.Since(f.migrateAttemptAt) < f.cfg.CacheStaleAfter {
		f.mu.Unlock()
		return
	}
	f.migrateAttemptAt = time.Now()
	f.mu.Unlock()

	f.flight.Do("migrate", func() (interface{}, error) {
		result, err := f.runMigration(ctx)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			slog.Warn("auto-migration failed, staying on local storage", "errors", result.Errors)
		}
		return result, nil
	})
}

// Migrate runs a migration attempt explicitly, for the CLI and for tests.
// Once a run has completed, further calls are no-ops rather than re-uploads.
func (f *Facade) Migrate(ctx context.Context) (*migration.Result, error) {
	if f.remote == nil {
		return nil, fmt.Errorf("no remote backend configured")
	}
	if !migration.IsMigrationNeeded(f.local) {
		slog.Debug("migration not needed, skipping")
		return &migration.Result{Success: true, Errors: []string{}, RunID: f.local.MigrationRunID()}, nil
	}
	return f.runMigration(ctx)
}

func (f *Facade) runMigration(ctx context.Context) (*migration.Result, error) {
	eng := migration.New(f.local, f.remote, migration.Config{
		BatchSize:            f.cfg.BatchSize,
		ValidateBeforeUpload: true,
		EnableRollback:       true,
		RetryAttempts:        f.cfg.RetryAttempts,
		RetryDelay:           f.cfg.RetryDelay,
	})
	result, err := eng.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	if result.Success {
		f.cache.invalidate()
		slog.Info("migration complete",
			"conversations", result.MigratedConversations, "messages", result.MigratedMessages)
	}
	return result, nil
}

// GetConversations lists all conversations, newest activity first.
// Results are cached; concurrent misses share one backend fetch.
func (f *Facade) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	if list, ok := f.cache.get(); ok {
		return list, nil
	}

	v, err, _ := f.flight.Do("list", func() (interface{}, error) {
		var list []models.Conversation
		var err error
		if f.resolveProvider(ctx) == ProviderRemote {
			list, err = f.remote.ListConversations(ctx)
		} else {
			list, err = f.local.GetConversations()
		}
		if err != nil {
			return nil, err
		}
		sortByActivity(list)
		f.cache.put(list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Conversation), nil
}

// GetConversation returns one conversation by id. An unknown id is a
// ConversationNotFoundError on both providers.
func (f *Facade) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if f.resolveProvider(ctx) == ProviderLocal {
		conv, err := f.local.GetConversation(id)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, f.localNotFound(id)
		}
		return conv, nil
	}
	return f.remoteConversation(ctx, id)
}

// GetMessages returns a conversation's transcript, oldest first
func (f *Facade) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if f.resolveProvider(ctx) == ProviderLocal {
		return f.local.GetMessages(conversationID)
	}
	return f.remote.ListMessages(ctx, conversationID)
}

// GetConversationWithMessages returns a conversation and its transcript.
// An unknown id is a ConversationNotFoundError on both providers.
func (f *Facade) GetConversationWithMessages(ctx context.Context, id string) (*models.Conversation, []models.Message, error) {
	if f.resolveProvider(ctx) == ProviderLocal {
		conv, msgs, err := f.local.GetConversationWithMessages(id)
		if err != nil {
			return nil, nil, err
		}
		if conv == nil {
			return nil, nil, f.localNotFound(id)
		}
		return conv, msgs, nil
	}
	conv, err := f.remoteConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := f.remote.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// CreateConversation creates a conversation, enforcing the conversation
// quota for the active tier
func (f *Facade) CreateConversation(ctx context.Context, partial models.Conversation) (*models.Conversation, error) {
	if f.resolveProvider(ctx) == ProviderLocal {
		conv, err := f.local.CreateConversation(partial)
		if err != nil {
			return nil, err
		}
		f.cacheUpsert(*conv)
		return conv, nil
	}

	status, err := f.remoteQuota(ctx)
	if err != nil {
		return nil, err
	}
	if status.IsAtLimit {
		return nil, &localstore.QuotaExceededError{Used: status.Used, Limit: status.Limit, Guest: false}
	}

	conv := models.NewConversation(partial)
	if r := validate.Conversation(conv); !r.Valid {
		return nil, &localstore.ValidationError{Issues: r.Errors}
	}
	if err := f.remote.InsertConversations(ctx, []models.Conversation{*conv}); err != nil {
		return nil, err
	}
	f.cacheUpsert(*conv)
	return conv, nil
}

// SaveConversation upserts a conversation record. The cached list is
// patched optimistically and reverted when the backend write fails.
func (f *Facade) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	revert := f.cache.patch(func(list []models.Conversation) []models.Conversation {
		return upsertInto(list, *conv)
	})

	var err error
	if f.resolveProvider(ctx) == ProviderLocal {
		err = f.local.SaveConversation(conv)
	} else {
		if r := validate.Conversation(conv); !r.Valid {
			err = &localstore.ValidationError{Issues: r.Errors}
		} else {
			conv.Touch()
			err = f.remote.InsertConversations(ctx, []models.Conversation{*conv})
		}
	}
	if err != nil {
		revert()
		return err
	}
	return nil
}

// SaveMessages appends messages to a conversation, enforcing the guest
// message cap and the per-conversation poll budget
func (f *Facade) SaveMessages(ctx context.Context, conversationID string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	provider := f.resolveProvider(ctx)

	var conv *models.Conversation
	var existing []models.Message
	var err error
	if provider == ProviderLocal {
		conv, existing, err = f.local.GetConversationWithMessages(conversationID)
	} else {
		conv, err = f.remoteConversation(ctx, conversationID)
		if err == nil {
			existing, err = f.remote.ListMessages(ctx, conversationID)
		}
	}
	if err != nil {
		return err
	}

	if provider == ProviderLocal && f.local.GetQuotaInfo().IsGuest {
		if len(existing)+len(msgs) > f.cfg.GuestMessageLimit {
			return &MessageLimitError{ConversationID: conversationID, Limit: f.cfg.GuestMessageLimit}
		}
	}
	if err := f.checkPollBudget(conversationID, existing, msgs); err != nil {
		return err
	}

	revert := f.cache.patch(func(list []models.Conversation) []models.Conversation {
		for i := range list {
			if list[i].ID == conversationID {
				list[i].MessageCount += len(msgs)
				list[i].UpdatedAt = time.Now().UTC()
			}
		}
		return list
	})

	if provider == ProviderLocal {
		err = f.local.SaveMessages(conversationID, msgs)
	} else {
		err = f.remoteSaveMessages(ctx, conv, msgs)
	}
	if err != nil {
		revert()
		return err
	}
	return nil
}

// DeleteConversation removes a conversation and its messages. Deleting a
// conversation that does not exist is a no-op.
func (f *Facade) DeleteConversation(ctx context.Context, id string) error {
	revert := f.cache.patch(func(list []models.Conversation) []models.Conversation {
		kept := list[:0]
		for _, c := range list {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		return kept
	})

	var err error
	if f.resolveProvider(ctx) == ProviderLocal {
		err = f.local.DeleteConversation(id)
	} else {
		err = f.remoteDelete(ctx, id)
	}
	if err != nil {
		revert()
		return err
	}
	return nil
}

// ClearAll removes every conversation from the active provider
func (f *Facade) ClearAll(ctx context.Context) error {
	defer f.cache.invalidate()
	if f.resolveProvider(ctx) == ProviderLocal {
		return f.local.ClearAll()
	}
	list, err := f.remote.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range list {
		if err := f.remoteDelete(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// SearchConversations matches the query against titles, first messages,
// and tags, case-insensitively
func (f *Facade) SearchConversations(ctx context.Context, query string) ([]models.Conversation, error) {
	list, err := f.GetConversations(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list, nil
	}

	var out []models.Conversation
	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Title), q) ||
			strings.Contains(strings.ToLower(c.FirstMessage), q) ||
			matchesTag(c.Tags, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SetFavorite toggles a conversation's favorite flag
func (f *Facade) SetFavorite(ctx context.Context, id string, favorite bool) error {
	conv, err := f.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.IsFavorite = favorite
	if !favorite {
		conv.FavoriteRank = nil
	}
	return f.SaveConversation(ctx, conv)
}

// SetStatus moves a conversation through its lifecycle
// (active, completed, archived)
func (f *Facade) SetStatus(ctx context.Context, id string, status models.ConversationStatus) error {
	switch status {
	case models.StatusActive, models.StatusCompleted, models.StatusArchived:
	default:
		return fmt.Errorf("unknown conversation status %q", status)
	}
	conv, err := f.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.Status = status
	return f.SaveConversation(ctx, conv)
}

// AddTag attaches a tag to a conversation, ignoring duplicates
func (f *Facade) AddTag(ctx context.Context, id, tag string) error {
	conv, err := f.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.AddTag(tag)
	return f.SaveConversation(ctx, conv)
}

// RemoveTag detaches a tag from a conversation
func (f *Facade) RemoveTag(ctx context.Context, id, tag string) error {
	conv, err := f.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.RemoveTag(tag)
	return f.SaveConversation(ctx, conv)
}

// QuotaStatus reports conversation quota for the active provider
func (f *Facade) QuotaStatus(ctx context.Context) (QuotaStatus, error) {
	if f.resolveProvider(ctx) == ProviderLocal {
		info := f.local.GetQuotaInfo()
		return newQuotaStatus(info.Used, info.Limit, info.IsGuest), nil
	}
	return f.remoteQuota(ctx)
}

// ConversationQuota derives per-conversation message and poll usage
func (f *Facade) ConversationQuota(ctx context.Context, conversationID string) (ConversationQuota, error) {
	msgs, err := f.GetMessages(ctx, conversationID)
	if err != nil {
		return ConversationQuota{}, err
	}
	q := ConversationQuota{
		ConversationID: conversationID,
		MessagesUsed:   len(msgs),
		MessageLimit:   localstore.UnlimitedConversations,
		PollLimit:      f.cfg.PollsPerConversation,
	}
	if f.resolveProvider(ctx) == ProviderLocal && f.local.GetQuotaInfo().IsGuest {
		q.MessageLimit = f.cfg.GuestMessageLimit
	}
	for i := range msgs {
		if msgs[i].HasPollSuggestion() {
			q.PollsUsed++
		}
	}
	return q, nil
}

// localNotFound builds the not-found error for the local tier with the
// same diagnostic context the remote path reports
func (f *Facade) localNotFound(id string) error {
	nf := &localstore.ConversationNotFoundError{ConversationID: id}
	if list, err := f.local.GetConversations(); err == nil {
		nf.ConversationCount = len(list)
		nf.KnownIDs = make([]string, 0, len(list))
		for i := range list {
			nf.KnownIDs = append(nf.KnownIDs, list[i].ID)
		}
	}
	return nf
}

// Remote helpers

func (f *Facade) remoteConversation(ctx context.Context, id string) (*models.Conversation, error) {
	list, err := f.remote.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	known := make([]string, 0, len(list))
	for i := range list {
		if list[i].ID == id {
			conv := list[i]
			return &conv, nil
		}
		known = append(known, list[i].ID)
	}
	return nil, &localstore.ConversationNotFoundError{
		ConversationID:    id,
		KnownIDs:          known,
		ConversationCount: len(list),
	}
}

// remoteSaveMessages appends the batch and refreshes the conversation's
// counters in the same order the local store does
func (f *Facade) remoteSaveMessages(ctx context.Context, conv *models.Conversation, msgs []models.Message) error {
	for i := range msgs {
		if r := validate.Message(&msgs[i]); !r.Valid {
			return &localstore.ValidationError{Issues: r.Errors}
		}
	}
	if err := f.remote.InsertMessages(ctx, msgs); err != nil {
		return err
	}

	conv.MessageCount += len(msgs)
	if conv.FirstMessage == "" {
		for _, m := range msgs {
			if m.Role == models.RoleUser {
				conv.FirstMessage = models.Excerpt(m.Content)
				break
			}
		}
	}
	conv.Touch()
	return f.remote.InsertConversations(ctx, []models.Conversation{*conv})
}

func (f *Facade) remoteDelete(ctx context.Context, id string) error {
	msgs, err := f.remote.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := f.remote.DeleteMessages(ctx, id, ids); err != nil {
			return err
		}
	}
	return f.remote.DeleteConversations(ctx, []string{id})
}

func (f *Facade) remoteQuota(ctx context.Context) (QuotaStatus, error) {
	used, err := f.remote.CountConversations(ctx)
	if err != nil {
		return QuotaStatus{}, err
	}
	return newQuotaStatus(used, f.cfg.AuthConversationLimit, false), nil
}

// checkPollBudget rejects the batch when it would push the conversation
// past its poll suggestion cap
func (f *Facade) checkPollBudget(conversationID string, existing, incoming []models.Message) error {
	count := 0
	for i := range existing {
		if existing[i].HasPollSuggestion() {
			count++
		}
	}
	for i := range incoming {
		if incoming[i].HasPollSuggestion() {
			count++
		}
	}
	if count > f.cfg.PollsPerConversation {
		return &PollLimitError{ConversationID: conversationID, Limit: f.cfg.PollsPerConversation}
	}
	return nil
}

// cacheUpsert patches a created conversation into the cached list
func (f *Facade) cacheUpsert(conv models.Conversation) {
	f.cache.patch(func(list []models.Conversation) []models.Conversation {
		return upsertInto(list, conv)
	})
}

func upsertInto(list []models.Conversation, conv models.Conversation) []models.Conversation {
	for i := range list {
		if list[i].ID == conv.ID {
			list[i] = conv
			return list
		}
	}
	return append(list, conv)
}

// sortByActivity orders conversations by most recent update, ties by id
func sortByActivity(list []models.Conversation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
}

func matchesTag(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
