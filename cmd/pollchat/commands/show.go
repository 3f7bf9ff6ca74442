// ABOUTME: CLI command to display one conversation with its transcript
// ABOUTME: Shows messages oldest first with roles and poll suggestions marked
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/models"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation transcript",
		Long: `Show a conversation and its full message transcript.

Examples:
  pollchat show conv_20260828_101500_ab12cd34
  pollchat show conv_20260828_101500_ab12cd34 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}

	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	conv, msgs, err := facade.GetConversationWithMessages(ctx, args[0])
	if err != nil {
		var nf *localstore.ConversationNotFoundError
		if errors.As(err, &nf) {
			return fmt.Errorf("conversation %s not found", args[0])
		}
		return fmt.Errorf("loading conversation: %w", err)
	}

	if outputFormat == "json" {
		payload := struct {
			Conversation *models.Conversation `json:"conversation"`
			Messages     []models.Message     `json:"messages"`
		}{conv, msgs}
		jsonData, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", conv.Title, conv.Status)
	if len(conv.Tags) > 0 {
		fmt.Fprintf(out, "Tags: %v\n", conv.Tags)
	}
	fmt.Fprintf(out, "Updated %s\n\n", formatTime(conv.UpdatedAt))

	for _, m := range msgs {
		marker := ""
		if m.HasPollSuggestion() {
			marker = " [poll]"
		}
		fmt.Fprintf(out, "[%s]%s %s\n", m.Role, marker, m.Content)
	}
	if len(msgs) == 0 && !quiet {
		fmt.Fprintf(out, "No messages yet\n")
	}
	return nil
}
