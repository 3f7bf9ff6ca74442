// ABOUTME: Root CLI command with global flags and subcommand registration
// ABOUTME: Defines verbose/quiet/format flags shared by every command
package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
)

const banner = `
██████╗  ██████╗ ██╗     ██╗      ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔═══██╗██║     ██║     ██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██████╔╝██║   ██║██║     ██║     ██║     ███████║███████║   ██║
██╔═══╝ ██║   ██║██║     ██║     ██║     ██╔══██║██╔══██║   ██║
██║     ╚██████╔╝███████╗███████╗╚██████╗██║  ██║██║  ██║   ██║
╚═╝      ╚═════╝ ╚══════╝╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pollchat",
		Short: "Conversational scheduling polls from your terminal",
		Long: banner + `
Pollchat stores scheduling conversations locally for guests and in the
cloud for signed-in users. Local conversations migrate automatically the
first time you use the cloud backend.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table, json")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewNewCmd(),
		NewSendCmd(),
		NewListCmd(),
		NewShowCmd(),
		NewSearchCmd(),
		NewDeleteCmd(),
		NewQuotaCmd(),
		NewMigrateCmd(),
		NewClearCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
