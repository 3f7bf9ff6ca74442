// ABOUTME: CLI command to clear all local conversation data
// ABOUTME: Requires confirmation unless --force is passed
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearForce bool

// NewClearCmd creates the clear command
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		Long: `Delete every conversation and message from the active storage tier.

This cannot be undone. Migration history is preserved.

Examples:
  pollchat clear --force`,
		RunE: runClear,
	}

	cmd.Flags().BoolVar(&clearForce, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearForce {
		return fmt.Errorf("refusing to clear without --force")
	}

	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	if err := facade.ClearAll(context.Background()); err != nil {
		return fmt.Errorf("clearing conversations: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "All conversations deleted\n")
	}
	return nil
}
