// ABOUTME: CLI command to search conversations
// ABOUTME: Matches titles, first messages, and tags case-insensitively
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversations",
		Long: `Search conversations by title, first message, or tag.

Examples:
  pollchat search offsite
  pollchat search "lunch vote" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	facade, _, err := openFacade(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	query := strings.Join(args, " ")

	list, err := facade.SearchConversations(ctx, query)
	if err != nil {
		return fmt.Errorf("searching conversations: %w", err)
	}

	return printConversations(cmd, list)
}
