package grace

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

var forceEnd bool

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "Force-end the grace period",
	Long: `End the grace period now. Clients that have not reclaimed their locks
lose them, and new lock requests are accepted immediately. Requires an admin
token.

Examples:
  nfs4stated grace end
  nfs4stated grace end --force`,
	RunE: runGraceEnd,
}

func init() {
	endCmd.Flags().BoolVarP(&forceEnd, "force", "f", false, "Skip confirmation prompt")
}

func runGraceEnd(cmd *cobra.Command, args []string) error {
	return cmdutil.RunWithConfirmation("End the grace period? Unreclaimed locks are lost", forceEnd, func() error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		if _, err := client.ForceEndGrace(); err != nil {
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.IsConflict() {
				fmt.Println("No active grace period")
				return nil
			}
			return fmt.Errorf("failed to end grace period: %w", err)
		}

		cmdutil.PrintSuccess("Grace period ended")
		return nil
	})
}
