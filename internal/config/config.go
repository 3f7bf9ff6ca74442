// ABOUTME: Centralized configuration for the pollchat storage core
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// UnlimitedConversations is the sentinel limit meaning "no ceiling"
const UnlimitedConversations = -1

// Config holds all configuration for the pollchat storage core
type Config struct {
	// Charm settings (remote store)
	CharmHost   string
	CharmDBName string
	AutoSync    bool

	// Quota ceilings. The guest conversation limit here is the single
	// authoritative constant for both the local store and the facade.
	GuestConversationLimit int
	AuthConversationLimit  int
	GuestMessageLimit      int
	PollsPerConversation   int

	// Local store settings
	Retention time.Duration

	// Migration settings
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration

	// Facade cache settings
	CacheStaleAfter time.Duration
	CacheGCAfter    time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		CharmHost:              getEnv("CHARM_HOST", "cloud.charm.sh"),
		CharmDBName:            getEnv("CHARM_DB", "pollchat"),
		AutoSync:               getEnvBool("CHARM_AUTO_SYNC", true),
		GuestConversationLimit: getEnvInt("POLLCHAT_GUEST_CONVERSATION_LIMIT", 10),
		AuthConversationLimit:  getEnvInt("POLLCHAT_AUTH_CONVERSATION_LIMIT", 100),
		GuestMessageLimit:      getEnvInt("POLLCHAT_GUEST_MESSAGE_LIMIT", 50),
		PollsPerConversation:   getEnvInt("POLLCHAT_POLLS_PER_CONVERSATION", 3),
		Retention:              getEnvDuration("POLLCHAT_RETENTION", 30*24*time.Hour),
		BatchSize:              getEnvInt("POLLCHAT_BATCH_SIZE", 10),
		RetryAttempts:          getEnvInt("POLLCHAT_RETRY_ATTEMPTS", 3),
		RetryDelay:             getEnvDuration("POLLCHAT_RETRY_DELAY", time.Second),
		CacheStaleAfter:        getEnvDuration("POLLCHAT_CACHE_STALE_AFTER", 30*time.Second),
		CacheGCAfter:           getEnvDuration("POLLCHAT_CACHE_GC_AFTER", 5*time.Minute),
		LogLevel:               getEnv("POLLCHAT_LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.GuestConversationLimit < 1 {
		return fmt.Errorf("POLLCHAT_GUEST_CONVERSATION_LIMIT must be at least 1, got %d", c.GuestConversationLimit)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("POLLCHAT_BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("POLLCHAT_RETRY_ATTEMPTS must be 1-10, got %d", c.RetryAttempts)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("POLLCHAT_RETENTION must be positive, got %v", c.Retention)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
