// ABOUTME: CLI command to display conversation quota usage
// ABOUTME: Shows used, limit, and remaining with near-limit warnings
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pollpilot/pollchat/internal/localstore"
)

// NewQuotaCmd creates the quota command
func NewQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show conversation quota usage",
		Long: `Show conversation quota usage for the active storage tier.

Examples:
  pollchat quota
  pollchat quota --format json`,
		RunE: runQuota,
	}

	return cmd
}

func runQuota(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	status, err := facade.QuotaStatus(context.Background())
	if err != nil {
		return fmt.Errorf("getting quota: %w", err)
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	out := cmd.OutOrStdout()
	if status.Limit == localstore.UnlimitedConversations {
		fmt.Fprintf(out, "Conversations: %d (no limit)\n", status.Used)
		return nil
	}

	fmt.Fprintf(out, "Conversations: %d of %d (%d remaining)\n", status.Used, status.Limit, status.Remaining)
	if status.IsAtLimit {
		fmt.Fprintf(out, "You've reached your conversation limit. Delete a conversation or sign in for more.\n")
	} else if status.IsNearLimit && !quiet {
		fmt.Fprintf(out, "You're close to your conversation limit.\n")
	}
	return nil
}
