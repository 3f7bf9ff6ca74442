// ABOUTME: CLI command to delete a conversation
// ABOUTME: Removes the conversation and all of its messages
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCmd creates the delete command
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Long: `Delete a conversation and all of its messages.

Deleting a conversation that does not exist is a no-op.

Examples:
  pollchat delete conv_20260828_101500_ab12cd34`,
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	if err := facade.DeleteConversation(context.Background(), args[0]); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	}
	return nil
}
