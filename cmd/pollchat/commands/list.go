// ABOUTME: CLI command to list conversations
// ABOUTME: Table or JSON output, optionally filtered to favorites
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pollpilot/pollchat/internal/models"
)

var listFavorites bool

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Long: `List conversations, newest activity first.

Examples:
  pollchat list
  pollchat list --favorites
  pollchat list --format json`,
		RunE: runList,
	}

	cmd.Flags().BoolVar(&listFavorites, "favorites", false, "Show only favorite conversations")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	list, err := facade.GetConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	if listFavorites {
		kept := list[:0]
		for _, c := range list {
			if c.IsFavorite {
				kept = append(kept, c)
			}
		}
		list = kept
	}

	return printConversations(cmd, list)
}

func printConversations(cmd *cobra.Command, list []models.Conversation) error {
	if len(list) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No conversations found\n")
		}
		return nil
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TITLE\tSTATUS\tMSGS\tUPDATED\tID\n")
	fmt.Fprintf(w, "-----\t------\t----\t-------\t--\n")

	for _, c := range list {
		title := c.Title
		if c.IsFavorite {
			title = "* " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncate(title, 32),
			c.Status,
			c.MessageCount,
			formatTime(c.UpdatedAt),
			c.ID)
	}
	w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d conversation(s)\n", len(list))
	}
	return nil
}
