package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clients",
	Long: `List all clients registered with the state server, with their peer
address, session and state counts and the time left on their lease.

Examples:
  # List as table
  nfs4stated client list

  # List as JSON
  nfs4stated client list -o json`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	clients, err := client.ListClients()
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, clients, len(clients) == 0, "No registered clients.", ClientList(clients))
}
