// ABOUTME: MCP tool definitions and registration for the pollchat server
// ABOUTME: Defines JSON schemas for the conversation, quota, and migration tools
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pollpilot/pollchat/internal/storage"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, facade *storage.Facade) *Handlers {
	handlers := &Handlers{facade: facade}

	// 1. create_conversation - Start a new scheduling conversation
	server.AddTool(mcp.Tool{
		Name:        "create_conversation",
		Description: "Start a new scheduling conversation. Fails when the guest conversation quota is exhausted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Conversation title",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Optional tags for filtering and search",
				},
			},
			Required: []string{"title"},
		},
	}, handlers.CreateConversation)

	// 2. send_message - Append a message to a conversation
	server.AddTool(mcp.Tool{
		Name:        "send_message",
		Description: "Append a message to a conversation. Guest conversations are capped at a fixed number of messages.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Target conversation ID",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Message author: user or assistant",
					"enum":        []string{"user", "assistant"},
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Message text",
				},
			},
			Required: []string{"conversation_id", "role", "content"},
		},
	}, handlers.SendMessage)

	// 3. list_conversations - List conversations, optionally filtered
	server.AddTool(mcp.Tool{
		Name:        "list_conversations",
		Description: "List conversations, newest activity first. An optional query matches titles, first messages, and tags.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Optional search query",
				},
			},
		},
	}, handlers.ListConversations)

	// 4. get_conversation - Get one conversation with its transcript
	server.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get a conversation and its full message transcript.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation ID to retrieve",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.GetConversation)

	// 5. delete_conversation - Delete a conversation and its messages
	server.AddTool(mcp.Tool{
		Name:        "delete_conversation",
		Description: "Delete a conversation and all of its messages. Deleting an unknown conversation is a no-op.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation ID to delete",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.DeleteConversation)

	// 6. get_quota - Report conversation quota for the active tier
	server.AddTool(mcp.Tool{
		Name:        "get_quota",
		Description: "Report conversation quota usage, including near-limit and at-limit flags.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.GetQuota)

	// 7. migrate_storage - Move local conversations to the remote store
	server.AddTool(mcp.Tool{
		Name:        "migrate_storage",
		Description: "Migrate local conversations to the remote store. A no-op when migration has already completed.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.MigrateStorage)

	return handlers
}
