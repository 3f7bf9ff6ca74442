// ABOUTME: MCP tool handler implementations for the pollchat server
// ABOUTME: Each handler delegates to the storage facade and returns JSON tool results
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/storage"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	facade *storage.Facade
}

// CreateConversation handles the create_conversation tool
func (h *Handlers) CreateConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title argument is required and must be a string"), nil
	}

	partial := models.Conversation{Title: title}
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		if raw, exists := args["tags"]; exists {
			if arr, ok := raw.([]interface{}); ok {
				for _, item := range arr {
					if tag, ok := item.(string); ok {
						partial.Tags = append(partial.Tags, tag)
					}
				}
			}
		}
	}

	conv, err := h.facade.CreateConversation(ctx, partial)
	if err != nil {
		var qe *localstore.QuotaExceededError
		if errors.As(err, &qe) {
			return mcp.NewToolResultError(fmt.Sprintf("quota exceeded: %d of %d conversations used", qe.Used, qe.Limit)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to create conversation: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"status":          string(conv.Status),
		"created_at":      conv.CreatedAt.Format(time.RFC3339),
	})
}

// SendMessage handles the send_message tool
func (h *Handlers) SendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}
	role, err := request.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError("role argument is required and must be a string"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required and must be a string"), nil
	}

	msg := models.NewMessage(conversationID, models.MessageRole(role), content)
	if err := h.facade.SaveMessages(ctx, conversationID, []models.Message{*msg}); err != nil {
		var nf *localstore.ConversationNotFoundError
		if errors.As(err, &nf) {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %s not found", conversationID)), nil
		}
		var mle *storage.MessageLimitError
		if errors.As(err, &mle) {
			return mcp.NewToolResultError(fmt.Sprintf("guest message limit of %d reached for this conversation", mle.Limit)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to send message: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": conversationID,
		"timestamp":       msg.Timestamp.Format(time.RFC3339),
	})
}

// ListConversations handles the list_conversations tool
func (h *Handlers) ListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")

	list, err := h.facade.SearchConversations(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list conversations: %v", err)), nil
	}

	conversations := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		conversations = append(conversations, map[string]interface{}{
			"conversation_id": c.ID,
			"title":           c.Title,
			"status":          string(c.Status),
			"message_count":   c.MessageCount,
			"is_favorite":     c.IsFavorite,
			"tags":            c.Tags,
			"updated_at":      c.UpdatedAt.Format(time.RFC3339),
		})
	}

	return jsonResult(map[string]interface{}{
		"conversations": conversations,
		"provider":      h.facade.Provider(ctx),
	})
}

// GetConversation handles the get_conversation tool
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	conv, msgs, err := h.facade.GetConversationWithMessages(ctx, conversationID)
	if err != nil {
		var nf *localstore.ConversationNotFoundError
		if errors.As(err, &nf) {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %s not found", conversationID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get conversation: %v", err)), nil
	}

	messages := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]interface{}{
			"message_id": m.ID,
			"role":       string(m.Role),
			"content":    m.Content,
			"timestamp":  m.Timestamp.Format(time.RFC3339),
		}
		if m.HasPollSuggestion() {
			entry["poll_suggestion"] = m.Metadata[models.PollSuggestionKey]
		}
		messages = append(messages, entry)
	}

	return jsonResult(map[string]interface{}{
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"status":          string(conv.Status),
		"messages":        messages,
	})
}

// DeleteConversation handles the delete_conversation tool
func (h *Handlers) DeleteConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	if err := h.facade.DeleteConversation(ctx, conversationID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete conversation: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"deleted":         true,
		"conversation_id": conversationID,
	})
}

// GetQuota handles the get_quota tool
func (h *Handlers) GetQuota(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.facade.QuotaStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get quota: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"used":          status.Used,
		"limit":         status.Limit,
		"remaining":     status.Remaining,
		"is_guest":      status.IsGuest,
		"is_near_limit": status.IsNearLimit,
		"is_at_limit":   status.IsAtLimit,
	})
}

// MigrateStorage handles the migrate_storage tool
func (h *Handlers) MigrateStorage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.facade.Migrate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("migration failed to start: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"success":                result.Success,
		"migrated_conversations": result.MigratedConversations,
		"migrated_messages":      result.MigratedMessages,
		"rollback_performed":     result.RollbackPerformed,
		"errors":                 result.Errors,
		"duration":               result.Duration.String(),
	})
}

// jsonResult marshals a response map into a text tool result
func jsonResult(response map[string]interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
