// ABOUTME: Schema validation for conversations and messages before persistence
// ABOUTME: Returns tagged results accumulating every violation, never just the first
package validate

import (
	"fmt"

	"github.com/pollpilot/pollchat/internal/models"
)

// Result is the outcome of validating a single record
type Result struct {
	Valid  bool
	Errors []string
}

func failure(errs []string) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Conversation checks a conversation record's shape. All field violations
// are collected before returning.
func Conversation(c *models.Conversation) Result {
	var errs []string
	if c == nil {
		return failure([]string{"conversation is nil"})
	}
	if c.ID == "" {
		errs = append(errs, "id is required")
	}
	if c.Title == "" {
		errs = append(errs, "title is required")
	}
	switch c.Status {
	case models.StatusActive, models.StatusCompleted, models.StatusArchived:
	case "":
		errs = append(errs, "status is required")
	default:
		errs = append(errs, fmt.Sprintf("status %q is not one of active, completed, archived", c.Status))
	}
	if c.CreatedAt.IsZero() {
		errs = append(errs, "created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		errs = append(errs, "updated_at is required")
	}
	if c.MessageCount < 0 {
		errs = append(errs, fmt.Sprintf("message_count must not be negative, got %d", c.MessageCount))
	}
	if c.FavoriteRank != nil && *c.FavoriteRank < 0 {
		errs = append(errs, fmt.Sprintf("favorite_rank must not be negative, got %d", *c.FavoriteRank))
	}
	return failure(errs)
}

// Message checks a message record's shape
func Message(m *models.Message) Result {
	var errs []string
	if m == nil {
		return failure([]string{"message is nil"})
	}
	if m.ID == "" {
		errs = append(errs, "id is required")
	}
	if m.ConversationID == "" {
		errs = append(errs, "conversation_id is required")
	}
	switch m.Role {
	case models.RoleUser, models.RoleAssistant:
	case "":
		errs = append(errs, "role is required")
	default:
		errs = append(errs, fmt.Sprintf("role %q is not one of user, assistant", m.Role))
	}
	if m.Content == "" {
		errs = append(errs, "content is required")
	}
	if m.Timestamp.IsZero() {
		errs = append(errs, "timestamp is required")
	}
	return failure(errs)
}

// CheckBatch validates a full export batch: every conversation and message
// is schema-checked, and referential integrity is enforced across the batch.
// A message whose conversation_id matches no conversation in the batch is
// reported as an orphaned message, distinct from schema errors.
func CheckBatch(conversations []models.Conversation, messages map[string][]models.Message) Result {
	var errs []string

	known := make(map[string]bool, len(conversations))
	for i := range conversations {
		if r := Conversation(&conversations[i]); !r.Valid {
			for _, e := range r.Errors {
				errs = append(errs, fmt.Sprintf("conversation %s: %s", conversations[i].ID, e))
			}
		}
		known[conversations[i].ID] = true
	}

	for convID, msgs := range messages {
		for i := range msgs {
			if r := Message(&msgs[i]); !r.Valid {
				for _, e := range r.Errors {
					errs = append(errs, fmt.Sprintf("message %s: %s", msgs[i].ID, e))
				}
			}
			if !known[msgs[i].ConversationID] {
				errs = append(errs, fmt.Sprintf("orphaned message %s: conversation %s not in batch", msgs[i].ID, msgs[i].ConversationID))
			}
		}
		// An empty list has no messages to flag individually
		if len(msgs) == 0 && !known[convID] {
			errs = append(errs, fmt.Sprintf("orphaned message list: conversation %s not in batch", convID))
		}
	}

	return failure(errs)
}
