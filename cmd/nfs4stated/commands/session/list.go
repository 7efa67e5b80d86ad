package session

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Long: `List every session on the state server with its fore/back channel
slot counts, the slots currently executing and the size of the reply cache.

Examples:
  nfs4stated session list
  nfs4stated session list -o json`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	sessions, err := client.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, "No sessions.", SessionList(sessions))
}
