package locks

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var showCmd = &cobra.Command{
	Use:   "show <object>",
	Short: "Show the locks on one object",
	Long: `Show every lock held on one object.

Examples:
  nfs4stated lock show 66696c652d31
  nfs4stated lock show --raw file-1 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	key, err := objectKey(args[0])
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	list, err := client.ListLocks(key)
	if err != nil {
		return fmt.Errorf("failed to list locks: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, list, list.Count == 0,
		fmt.Sprintf("No locks on object %s.", key), LockTable(list.Locks))
}
