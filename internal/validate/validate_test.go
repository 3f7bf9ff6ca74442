// ABOUTME: Tests for conversation and message schema validation
// ABOUTME: Covers error accumulation, batch checks, and orphan detection
package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/pollpilot/pollchat/internal/models"
)

func validConversation() models.Conversation {
	now := time.Now()
	return models.Conversation{
		ID:        "conv_20260828_100000_abcd1234",
		Title:     "Friday standup poll",
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validMessage(convID string) models.Message {
	return models.Message{
		ID:             "msg_20260828_100001_abcd1234",
		ConversationID: convID,
		Role:           models.RoleUser,
		Content:        "What times work for everyone?",
		Timestamp:      time.Now(),
	}
}

func TestConversation_Valid(t *testing.T) {
	c := validConversation()
	if r := Conversation(&c); !r.Valid {
		t.Errorf("Conversation() invalid for well-formed record: %v", r.Errors)
	}
}

func TestConversation_Nil(t *testing.T) {
	if r := Conversation(nil); r.Valid {
		t.Error("Conversation(nil) reported valid")
	}
}

func TestConversation_AccumulatesAllViolations(t *testing.T) {
	c := models.Conversation{Status: "pending", MessageCount: -1}
	r := Conversation(&c)
	if r.Valid {
		t.Fatal("invalid conversation reported valid")
	}
	// id, title, status, created_at, updated_at, message_count
	if len(r.Errors) != 6 {
		t.Errorf("got %d errors, want 6: %v", len(r.Errors), r.Errors)
	}
}

func TestConversation_StatusValues(t *testing.T) {
	tests := []struct {
		status models.ConversationStatus
		valid  bool
	}{
		{models.StatusActive, true},
		{models.StatusCompleted, true},
		{models.StatusArchived, true},
		{"", false},
		{"pending", false},
	}
	for _, tt := range tests {
		c := validConversation()
		c.Status = tt.status
		if got := Conversation(&c).Valid; got != tt.valid {
			t.Errorf("status %q: valid = %v, want %v", tt.status, got, tt.valid)
		}
	}
}

func TestConversation_NegativeFavoriteRank(t *testing.T) {
	c := validConversation()
	rank := -2
	c.FavoriteRank = &rank
	r := Conversation(&c)
	if r.Valid {
		t.Fatal("negative favorite rank accepted")
	}
	if !strings.Contains(r.Errors[0], "favorite_rank") {
		t.Errorf("error = %q, want favorite_rank mention", r.Errors[0])
	}
}

func TestMessage_Valid(t *testing.T) {
	m := validMessage("conv_x")
	if r := Message(&m); !r.Valid {
		t.Errorf("Message() invalid for well-formed record: %v", r.Errors)
	}
}

func TestMessage_AccumulatesAllViolations(t *testing.T) {
	m := models.Message{Role: "system"}
	r := Message(&m)
	if r.Valid {
		t.Fatal("invalid message reported valid")
	}
	// id, conversation_id, role, content, timestamp
	if len(r.Errors) != 5 {
		t.Errorf("got %d errors, want 5: %v", len(r.Errors), r.Errors)
	}
}

func TestCheckBatch_Valid(t *testing.T) {
	c := validConversation()
	msgs := map[string][]models.Message{
		c.ID: {validMessage(c.ID)},
	}
	if r := CheckBatch([]models.Conversation{c}, msgs); !r.Valid {
		t.Errorf("CheckBatch() invalid for consistent batch: %v", r.Errors)
	}
}

func TestCheckBatch_OrphanedMessage(t *testing.T) {
	c := validConversation()
	orphan := validMessage("conv_unknown")
	msgs := map[string][]models.Message{
		"conv_unknown": {orphan},
	}

	r := CheckBatch([]models.Conversation{c}, msgs)
	if r.Valid {
		t.Fatal("batch with orphan reported valid")
	}
	if len(r.Errors) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(r.Errors), r.Errors)
	}
	if !strings.Contains(r.Errors[0], "orphaned message") {
		t.Errorf("error = %q, want orphan report", r.Errors[0])
	}
}

func TestCheckBatch_OrphanedEmptyList(t *testing.T) {
	r := CheckBatch(nil, map[string][]models.Message{"conv_ghost": {}})
	if r.Valid {
		t.Fatal("batch with orphaned empty list reported valid")
	}
	if !strings.Contains(r.Errors[0], "conv_ghost") {
		t.Errorf("error = %q, want conversation id", r.Errors[0])
	}
}

func TestCheckBatch_AccumulatesAcrossRecords(t *testing.T) {
	good := validConversation()
	bad := validConversation()
	bad.ID = "conv_bad"
	bad.Title = ""

	badMsg := validMessage(good.ID)
	badMsg.Content = ""

	r := CheckBatch(
		[]models.Conversation{good, bad},
		map[string][]models.Message{good.ID: {badMsg, validMessage(good.ID)}},
	)
	if r.Valid {
		t.Fatal("batch with mixed violations reported valid")
	}
	// One title error and one content error, nothing else
	if len(r.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(r.Errors), r.Errors)
	}
}

func TestCheckBatch_Empty(t *testing.T) {
	if r := CheckBatch(nil, nil); !r.Valid {
		t.Errorf("CheckBatch(nil, nil) invalid: %v", r.Errors)
	}
}
