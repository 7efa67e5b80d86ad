package grace

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show grace period status",
	Long: `Display whether a grace period is active, the time remaining and how
many of the expected clients have completed their reclaim. This endpoint
needs no token.

Examples:
  nfs4stated grace status
  nfs4stated grace status -o json`,
	RunE: runGraceStatus,
}

func runGraceStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	resp, err := client.GraceStatus()
	if err != nil {
		return fmt.Errorf("failed to get grace status: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, resp, graceFields(resp))
}
