package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions <client-id>",
	Short: "List the sessions of a client",
	Long: `List the sessions owned by one client.

Examples:
  nfs4stated client sessions 00000001000000a3`,
	Args: cobra.ExactArgs(1),
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseClientID(args[0])
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	sessions, err := client.ClientSessions(id)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0,
		fmt.Sprintf("Client %s has no sessions.", cmdutil.FormatClientID(id)), session.SessionList(sessions))
}
