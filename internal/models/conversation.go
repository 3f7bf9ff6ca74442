// ABOUTME: Conversation represents one chat session with the scheduling assistant
// ABOUTME: Core data structure persisted by both the local and remote stores
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus tracks the lifecycle of a conversation
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusCompleted ConversationStatus = "completed"
	StatusArchived  ConversationStatus = "archived"
)

// Conversation represents a single chat session
type Conversation struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Status        ConversationStatus     `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	FirstMessage  string                 `json:"first_message,omitempty"`
	MessageCount  int                    `json:"message_count"`
	IsFavorite    bool                   `json:"is_favorite"`
	FavoriteRank  *int                   `json:"favorite_rank,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	RelatedPollID string                 `json:"related_poll_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewConversation creates a Conversation with a fresh ID and timestamps.
// Fields from partial are carried over; ID and timestamps are always assigned.
func NewConversation(partial Conversation) *Conversation {
	now := time.Now().UTC()
	conv := partial
	conv.ID = generateConversationID()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Status == "" {
		conv.Status = StatusActive
	}
	return &conv
}

// Touch bumps the update timestamp, called on every message append
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

// HasTag reports whether the conversation carries the given tag
func (c *Conversation) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present
func (c *Conversation) AddTag(tag string) {
	if !c.HasTag(tag) {
		c.Tags = append(c.Tags, tag)
	}
}

// RemoveTag drops a tag; no-op if absent
func (c *Conversation) RemoveTag(tag string) {
	for i, t := range c.Tags {
		if t == tag {
			c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)
			return
		}
	}
}

// generateConversationID generates a unique conversation identifier
func generateConversationID() string {
	return fmt.Sprintf("conv_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}
