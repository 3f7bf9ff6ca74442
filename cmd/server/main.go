// ABOUTME: Main entry point for the pollchat MCP server with stdio transport
// ABOUTME: Initializes the local store, remote adapter, and facade, then registers all tools
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pollpilot/pollchat/internal/config"
	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/mcp"
	"github.com/pollpilot/pollchat/internal/remote"
	"github.com/pollpilot/pollchat/internal/storage"
)

func main() {
	// Load .env file if it exists (for charm settings)
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	// Logs go to stderr: stdout carries the MCP protocol
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	local, err := localstore.NewStore(cfg.GuestConversationLimit, cfg.Retention, true)
	if err != nil {
		slog.Error("failed to initialize local store", "error", err)
		os.Exit(1)
	}
	if err := local.Initialize(true); err != nil {
		slog.Error("failed to initialize local store", "error", err)
		os.Exit(1)
	}

	// The remote store is optional: without it everything stays local
	var remoteStore remote.Store
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

	facade := storage.New(local, remoteStore, *cfg)

	server := mcpserver.NewMCPServer(
		"Pollchat Conversations",
		"0.1.0",
	)
	mcp.RegisterTools(server, facade)

	slog.Info("pollchat MCP server starting on stdio")
	if err := mcpserver.ServeStdio(server); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
