package locks

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var forcePurge bool

var purgeCmd = &cobra.Command{
	Use:   "purge <object>",
	Short: "Drop every lock on one object",
	Long: `Remove every lock on one object from the backend, regardless of owner.

This is a repair tool for locks orphaned by a crashed instance. The owning
clients are not told: their lock stateids stay valid but no longer protect
anything. Requires an admin token.

Examples:
  nfs4stated lock purge 66696c652d31
  nfs4stated lock purge --raw file-1 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&forcePurge, "force", "f", false, "Skip confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	key, err := objectKey(args[0])
	if err != nil {
		return err
	}

	return cmdutil.RunWithConfirmation(fmt.Sprintf("Drop every lock on object %s", key), forcePurge, func() error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		result, err := client.PurgeLocks(key)
		if err != nil {
			return fmt.Errorf("failed to purge locks: %w", err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Removed %d locks from object %s", result.Removed, result.Object))
		return nil
	})
}
