// Package grace implements grace period management subcommands.
package grace

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

// Cmd is the grace subcommand.
var Cmd = &cobra.Command{
	Use:   "grace",
	Short: "Manage the reclaim grace period",
	Long: `Inspect and end the grace period.

After a restart with recovered locks the server refuses new locks for a
while so that the previous owners can reclaim theirs. The period ends on its
own when every expected client has sent RECLAIM_COMPLETE or the configured
duration elapses.

Subcommands:
  status  Show grace period status
  end     Force-end the grace period`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(endCmd)
}

// graceFields renders grace status as a key-value table.
func graceFields(resp *apiclient.GraceStatusResponse) output.Fields {
	if !resp.Active {
		return output.Fields{}.Add("Active", "false").Add("Message", resp.Message)
	}
	return output.Fields{}.
		Add("Active", "true").
		Add("Remaining", fmt.Sprintf("%.0fs", resp.RemainingSeconds)).
		Add("Expected", fmt.Sprintf("%d clients", resp.ExpectedClients)).
		Add("Reclaimed", fmt.Sprintf("%d clients", resp.ReclaimedClients)).
		Add("Duration", resp.TotalDuration.String()).
		Add("Started", resp.StartedAt.Local().Format(time.RFC3339))
}
