package client

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var forceEvict bool

var evictCmd = &cobra.Command{
	Use:   "evict <client-id>",
	Short: "Evict a client",
	Long: `Evict a client by its hex client ID.

The client's sessions are destroyed, its stateids revoked and every lock it
holds is released; blocked lock requests of the client are cancelled. The
client has to establish a new client ID to continue. Requires an admin token.

Examples:
  # Evict a client (with confirmation prompt)
  nfs4stated client evict 00000001000000a3

  # Evict without confirmation
  nfs4stated client evict 00000001000000a3 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runEvict,
}

func init() {
	evictCmd.Flags().BoolVarP(&forceEvict, "force", "f", false, "Skip confirmation prompt")
}

func runEvict(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseClientID(args[0])
	if err != nil {
		return err
	}
	display := cmdutil.FormatClientID(id)

	return cmdutil.RunWithConfirmation(
		fmt.Sprintf("Evict client %s? Its sessions, stateids and locks are released", display),
		forceEvict,
		func() error {
			client, err := cmdutil.GetClient()
			if err != nil {
				return err
			}
			if err := client.EvictClient(id); err != nil {
				return fmt.Errorf("failed to evict client: %w", err)
			}
			cmdutil.PrintSuccess(fmt.Sprintf("Client %s evicted", display))
			return nil
		})
}
