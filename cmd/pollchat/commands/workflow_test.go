// ABOUTME: End-to-end CLI tests covering the conversation lifecycle
// ABOUTME: Exercises new, send, list, show, search, delete, and quota against a temp store
package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pollpilot/pollchat/internal/models"
)

// useTempStore redirects the XDG data directory to a fresh temp dir
func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

// createConversation runs "new" and returns the conversation via JSON output
func createConversation(t *testing.T, title string, extra ...string) models.Conversation {
	t.Helper()
	args := append([]string{"new", title, "--format", "json"}, extra...)
	output, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("new error = %v", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(output), &conv); err != nil {
		t.Fatalf("new output not JSON: %v\n%s", err, output)
	}
	return conv
}

func TestNewCommand(t *testing.T) {
	useTempStore(t)

	conv := createConversation(t, "Team offsite dates", "--tag", "work")
	if !strings.HasPrefix(conv.ID, "conv_") {
		t.Errorf("ID = %q, want conv_ prefix", conv.ID)
	}
	if conv.Title != "Team offsite dates" {
		t.Errorf("Title = %q", conv.Title)
	}
	if len(conv.Tags) != 1 || conv.Tags[0] != "work" {
		t.Errorf("Tags = %v, want [work]", conv.Tags)
	}
}

func TestSendAndShow(t *testing.T) {
	useTempStore(t)
	conv := createConversation(t, "Lunch vote")

	if _, err := runCLI(t, "send", conv.ID, "Where should we eat Friday?"); err != nil {
		t.Fatalf("send error = %v", err)
	}
	if _, err := runCLI(t, "send", conv.ID, "--assistant", "I'll set up a poll."); err != nil {
		t.Fatalf("send --assistant error = %v", err)
	}

	output, err := runCLI(t, "show", conv.ID)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(output, "Where should we eat Friday?") {
		t.Errorf("show output missing user message:\n%s", output)
	}
	if !strings.Contains(output, "[assistant]") {
		t.Errorf("show output missing assistant role marker:\n%s", output)
	}
}

func TestSendToUnknownConversation(t *testing.T) {
	useTempStore(t)

	_, err := runCLI(t, "send", "conv_nope", "hello")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not-found message", err)
	}
}

func TestShowUnknownConversation(t *testing.T) {
	useTempStore(t)

	_, err := runCLI(t, "show", "conv_nope")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not-found message", err)
	}
}

func TestListCommand(t *testing.T) {
	useTempStore(t)
	createConversation(t, "First chat")
	createConversation(t, "Second chat")

	output, err := runCLI(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(output, "First chat") || !strings.Contains(output, "Second chat") {
		t.Errorf("list output missing conversations:\n%s", output)
	}
	if !strings.Contains(output, "Total: 2 conversation(s)") {
		t.Errorf("list output missing total:\n%s", output)
	}

	output, err = runCLI(t, "list", "--format", "json")
	if err != nil {
		t.Fatalf("list --format json error = %v", err)
	}
	var list []models.Conversation
	if err := json.Unmarshal([]byte(output), &list); err != nil {
		t.Fatalf("list JSON output invalid: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("JSON list = %d conversations, want 2", len(list))
	}
}

func TestListEmpty(t *testing.T) {
	useTempStore(t)

	output, err := runCLI(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(output, "No conversations found") {
		t.Errorf("list output = %q, want empty notice", output)
	}
}

func TestSearchCommand(t *testing.T) {
	useTempStore(t)
	createConversation(t, "Team offsite planning")
	createConversation(t, "Lunch vote", "--tag", "food")

	output, err := runCLI(t, "search", "offsite")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(output, "Team offsite planning") || strings.Contains(output, "Lunch vote") {
		t.Errorf("search output wrong:\n%s", output)
	}

	output, err = runCLI(t, "search", "food")
	if err != nil {
		t.Fatalf("search by tag error = %v", err)
	}
	if !strings.Contains(output, "Lunch vote") {
		t.Errorf("tag search missed conversation:\n%s", output)
	}
}

func TestDeleteCommand(t *testing.T) {
	useTempStore(t)
	conv := createConversation(t, "Short lived")

	if _, err := runCLI(t, "delete", conv.ID); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	output, err := runCLI(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if strings.Contains(output, "Short lived") {
		t.Errorf("conversation still listed after delete:\n%s", output)
	}

	// Deleting again is a no-op
	if _, err := runCLI(t, "delete", conv.ID); err != nil {
		t.Errorf("second delete error = %v, want no-op", err)
	}
}

func TestQuotaCommand(t *testing.T) {
	useTempStore(t)
	t.Setenv("POLLCHAT_GUEST_CONVERSATION_LIMIT", "3")
	createConversation(t, "One")

	output, err := runCLI(t, "quota")
	if err != nil {
		t.Fatalf("quota error = %v", err)
	}
	if !strings.Contains(output, "1 of 3") {
		t.Errorf("quota output = %q, want usage line", output)
	}
}

func TestQuotaExhausted(t *testing.T) {
	useTempStore(t)
	t.Setenv("POLLCHAT_GUEST_CONVERSATION_LIMIT", "1")
	createConversation(t, "Only one allowed")

	_, err := runCLI(t, "new", "One too many")
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("error = %v, want quota message", err)
	}
}

func TestClearRequiresForce(t *testing.T) {
	useTempStore(t)
	createConversation(t, "Precious data")

	if _, err := runCLI(t, "clear"); err == nil {
		t.Fatal("clear without --force succeeded")
	}

	if _, err := runCLI(t, "clear", "--force"); err != nil {
		t.Fatalf("clear --force error = %v", err)
	}
	output, _ := runCLI(t, "list")
	if !strings.Contains(output, "No conversations found") {
		t.Errorf("conversations remain after clear:\n%s", output)
	}
}

func TestMigrateStatusAndDryRun(t *testing.T) {
	useTempStore(t)

	output, err := runCLI(t, "migrate", "--status")
	if err != nil {
		t.Fatalf("migrate --status error = %v", err)
	}
	if !strings.Contains(output, "Nothing to migrate") {
		t.Errorf("status output = %q, want nothing-to-migrate", output)
	}

	conv := createConversation(t, "Will migrate eventually")
	if _, err := runCLI(t, "send", conv.ID, "first message"); err != nil {
		t.Fatalf("send error = %v", err)
	}

	output, err = runCLI(t, "migrate", "--status")
	if err != nil {
		t.Fatalf("migrate --status error = %v", err)
	}
	if !strings.Contains(output, "waiting to migrate") {
		t.Errorf("status output = %q, want pending notice", output)
	}

	output, err = runCLI(t, "migrate", "--dry-run")
	if err != nil {
		t.Fatalf("migrate --dry-run error = %v", err)
	}
	if !strings.Contains(output, "Dry run OK: 1 conversation(s) and 1 message(s)") {
		t.Errorf("dry run output = %q", output)
	}

	// The dry run must not mark migration complete
	output, err = runCLI(t, "migrate", "--status")
	if err != nil {
		t.Fatalf("migrate --status error = %v", err)
	}
	if !strings.Contains(output, "waiting to migrate") {
		t.Errorf("status after dry run = %q, want still pending", output)
	}
}
