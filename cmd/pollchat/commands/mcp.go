// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Enables LLM agents to manage conversations via stdio
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/pollpilot/pollchat/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs pollchat as an MCP (Model Context Protocol) server, enabling
LLM agents to create conversations, send messages, and manage
scheduling polls via stdio.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an agent host)
  pollchat mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "pollchat": {
  #       "command": "pollchat",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(true)
	if err != nil {
		return err
	}

	server := mcpserver.NewMCPServer(
		"Pollchat Conversations",
		"0.1.0",
	)
	mcp.RegisterTools(server, facade)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !quiet {
		slog.Info("pollchat MCP server starting on stdio")
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			slog.Info("shutdown signal received")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
