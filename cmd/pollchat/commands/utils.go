// ABOUTME: Shared utility functions for CLI commands
// ABOUTME: Facade construction plus formatting helpers used across commands
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/pollpilot/pollchat/internal/config"
	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/remote"
	"github.com/pollpilot/pollchat/internal/storage"
)

// openFacade builds a storage facade for a command. Local-only commands
// pass withRemote=false and never touch the network; migration and the
// MCP server attach the charm adapter when it is reachable.
func openFacade(withRemote bool) (*storage.Facade, *localstore.Store, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	local, err := localstore.NewStore(cfg.GuestConversationLimit, cfg.Retention, true)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing local store: %w", err)
	}
	if err := local.Initialize(true); err != nil {
		return nil, nil, fmt.Errorf("initializing local store: %w", err)
	}

	var remoteStore remote.Store
	if withRemote {
		charmStore, err := remote.NewCharmStore(context.Background(), &remote.Config{
			Host:     cfg.CharmHost,
			DBName:   cfg.CharmDBName,
			AutoSync: cfg.AutoSync,
		})
		if err != nil {
			slog.Warn("remote store unavailable, running local-only", "error", err)
		} else {
			remoteStore = charmStore
		}
	}

	return storage.New(local, remoteStore, *cfg), local, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatTime formats a time for display
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < time.Minute {
		return "just now"
	} else if diff < time.Hour {
		mins := int(diff.Minutes())
		return fmt.Sprintf("%dm ago", mins)
	} else if diff < 24*time.Hour {
		hours := int(diff.Hours())
		return fmt.Sprintf("%dh ago", hours)
	} else if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%dd ago", days)
	}
	return t.Format("2006-01-02")
}
