// ABOUTME: Message represents a single user or assistant message in a conversation
// ABOUTME: Messages are immutable after creation; removal only via conversation delete
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry in a conversation transcript
type Message struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           MessageRole            `json:"role"`
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage creates a Message with a fresh ID and timestamp
func NewMessage(conversationID string, role MessageRole, content string) *Message {
	return &Message{
		ID:             generateMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

// PollSuggestion is an assistant-generated poll payload embedded in
// message metadata under the "poll_suggestion" key.
type PollSuggestion struct {
	Title         string   `json:"title"`
	PollType      string   `json:"poll_type"` // date | form | availability
	Options       []string `json:"options,omitempty"`
	ProposedDates []string `json:"proposed_dates,omitempty"`
}

// PollSuggestionKey is the metadata key holding an embedded PollSuggestion
const PollSuggestionKey = "poll_suggestion"

// HasPollSuggestion reports whether the message embeds a poll suggestion
func (m *Message) HasPollSuggestion() bool {
	if m.Metadata == nil {
		return false
	}
	_, ok := m.Metadata[PollSuggestionKey]
	return ok
}

// excerptRunes is the first-message preview length
const excerptRunes = 120

// Excerpt trims message content to a first-message preview, keeping
// rune boundaries intact
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return string(runes[:excerptRunes-3]) + "..."
}

// generateMessageID generates a unique message identifier
func generateMessageID() string {
	return fmt.Sprintf("msg_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}
