// ABOUTME: Conversation list cache with staleness and garbage-collection windows
// ABOUTME: Supports optimistic patching with revert for failed mutations
package storage

import (
	"sync"
	"time"

	"github.com/pollpilot/pollchat/internal/models"
)

// listCache holds one cached conversation list. Entries are fresh within
// staleAfter, kept for optimistic patching until gcAfter, then dropped.
type listCache struct {
	mu         sync.Mutex
	list       []models.Conversation
	fetchedAt  time.Time
	staleAfter time.Duration
	gcAfter    time.Duration
	now        func() time.Time
}

func newListCache(staleAfter, gcAfter time.Duration) *listCache {
	return &listCache{
		staleAfter: staleAfter,
		gcAfter:    gcAfter,
		now:        time.Now,
	}
}

// get returns the cached list when it is still fresh
func (c *listCache) get() ([]models.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	if c.list == nil || c.now().Sub(c.fetchedAt) >= c.staleAfter {
		return nil, false
	}
	return append([]models.Conversation(nil), c.list...), true
}

// put replaces the cached list with a fresh fetch
func (c *listCache) put(list []models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append([]models.Conversation(nil), list...)
	c.fetchedAt = c.now()
}

// invalidate drops the cached list entirely
func (c *listCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = nil
	c.fetchedAt = time.Time{}
}

// patch applies an optimistic update to the cached list and returns a
// revert function restoring the pre-patch state. Callers apply the patch
// before the backend write and revert when the write fails. A no-op pair
// is returned when nothing is cached.
func (c *listCache) patch(fn func([]models.Conversation) []models.Conversation) (revert func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	if c.list == nil {
		return func() {}
	}

	snapshot := append([]models.Conversation(nil), c.list...)
	snapshotAt := c.fetchedAt
	c.list = fn(append([]models.Conversation(nil), c.list...))

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.list = snapshot
		c.fetchedAt = snapshotAt
	}
}

// sweep drops an entry past the GC window; caller holds the lock
func (c *listCache) sweep() {
	if c.list != nil && c.now().Sub(c.fetchedAt) >= c.gcAfter {
		c.list = nil
		c.fetchedAt = time.Time{}
	}
}
