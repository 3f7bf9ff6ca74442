// ABOUTME: CLI command to start a new conversation
// ABOUTME: Creates a conversation and optionally sends a first message
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/models"
)

var (
	newTags    []string
	newMessage string
)

// NewNewCmd creates the new command
func NewNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Start a new scheduling conversation",
		Long: `Start a new scheduling conversation.

Guests can hold a limited number of conversations; sign in with a
charm account for a larger allowance.

Examples:
  pollchat new "Team offsite dates"
  pollchat new "Lunch spot vote" --tag food --tag team
  pollchat new "Sprint review" -m "Which afternoon works this week?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runNew,
	}

	cmd.Flags().StringArrayVar(&newTags, "tag", nil, "Tag the conversation (repeatable)")
	cmd.Flags().StringVarP(&newMessage, "message", "m", "", "Send a first message immediately")

	return cmd
}

func runNew(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	title := strings.Join(args, " ")

	conv, err := facade.CreateConversation(ctx, models.Conversation{Title: title, Tags: newTags})
	if err != nil {
		var qe *localstore.QuotaExceededError
		if errors.As(err, &qe) {
			return fmt.Errorf("conversation quota reached (%d of %d used); delete a conversation or sign in", qe.Used, qe.Limit)
		}
		return fmt.Errorf("creating conversation: %w", err)
	}

	if newMessage != "" {
		msg := models.NewMessage(conv.ID, models.RoleUser, newMessage)
		if err := facade.SaveMessages(ctx, conv.ID, []models.Message{*msg}); err != nil {
			return fmt.Errorf("sending first message: %w", err)
		}
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", conv.ID)
	}
	return nil
}
