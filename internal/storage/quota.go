// ABOUTME: Quota status reporting and guest-tier limit enforcement
// ABOUTME: Conversation ceilings, per-conversation message caps, and poll budgets
package storage

import (
	"fmt"

	"github.com/pollpilot/pollchat/internal/localstore"
)

// nearLimitThreshold is how many remaining conversations count as "near"
const nearLimitThreshold = 2

// QuotaStatus summarizes conversation quota for display and gating
type QuotaStatus struct {
	Used        int  `json:"used"`
	Limit       int  `json:"limit"` // UnlimitedConversations when uncapped
	Remaining   int  `json:"remaining"`
	IsGuest     bool `json:"is_guest"`
	IsNearLimit bool `json:"is_near_limit"`
	IsAtLimit   bool `json:"is_at_limit"`
}

// newQuotaStatus derives the display fields from used/limit
func newQuotaStatus(used, limit int, isGuest bool) QuotaStatus {
	s := QuotaStatus{Used: used, Limit: limit, IsGuest: isGuest}
	if limit == localstore.UnlimitedConversations {
		s.Remaining = localstore.UnlimitedConversations
		return s
	}
	s.Remaining = limit - used
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	s.IsNearLimit = s.Remaining <= nearLimitThreshold
	s.IsAtLimit = s.Remaining <= 0
	return s
}

// ConversationQuota reports per-conversation usage against the guest
// message cap and the poll suggestion cap
type ConversationQuota struct {
	ConversationID string `json:"conversation_id"`
	MessagesUsed   int    `json:"messages_used"`
	MessageLimit   int    `json:"message_limit"` // UnlimitedConversations when signed in
	PollsUsed      int    `json:"polls_used"`
	PollLimit      int    `json:"poll_limit"`
}

// MessageLimitError reports a guest conversation at its message cap
type MessageLimitError struct {
	ConversationID string
	Limit          int
}

func (e *MessageLimitError) Error() string {
	return fmt.Sprintf("conversation %s reached the guest message limit of %d", e.ConversationID, e.Limit)
}

// PollLimitError reports a conversation at its poll suggestion cap
type PollLimitError struct {
	ConversationID string
	Limit          int
}

func (e *PollLimitError) Error() string {
	return fmt.Sprintf("conversation %s reached the poll limit of %d", e.ConversationID, e.Limit)
}
