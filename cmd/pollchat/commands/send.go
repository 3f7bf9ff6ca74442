// ABOUTME: CLI command to append a message to a conversation
// ABOUTME: Maps quota and not-found failures to actionable errors
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/storage"
)

var sendAsAssistant bool

// NewSendCmd creates the send command
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <message>",
		Short: "Send a message to a conversation",
		Long: `Send a message to an existing conversation.

Guest conversations are capped at a fixed number of messages.

Examples:
  pollchat send conv_20260828_101500_ab12cd34 "Does Thursday work?"
  pollchat send conv_20260828_101500_ab12cd34 --assistant "Here's a poll."`,
		Args: cobra.MinimumNArgs(2),
		RunE: runSend,
	}

	cmd.Flags().BoolVar(&sendAsAssistant, "assistant", false, "Record the message as an assistant reply")

	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	conversationID := args[0]
	content := strings.Join(args[1:], " ")

	role := models.RoleUser
	if sendAsAssistant {
		role = models.RoleAssistant
	}

	msg := models.NewMessage(conversationID, role, content)
	if err := facade.SaveMessages(ctx, conversationID, []models.Message{*msg}); err != nil {
		var nf *localstore.ConversationNotFoundError
		if errors.As(err, &nf) {
			return fmt.Errorf("conversation %s not found; run 'pollchat list' to see available conversations", conversationID)
		}
		var mle *storage.MessageLimitError
		if errors.As(err, &mle) {
			return fmt.Errorf("this conversation reached the guest message limit of %d; sign in to continue it", mle.Limit)
		}
		return fmt.Errorf("sending message: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
	}
	return nil
}
