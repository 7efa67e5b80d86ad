package session

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/pkg/apiclient"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

var forceDestroy bool

var destroyCmd = &cobra.Command{
	Use:   "destroy <session-id>",
	Short: "Destroy a session",
	Long: `Destroy one session. The owning client keeps its client ID and state
and may create a new session. A session with requests in flight cannot be
destroyed; retry once they complete. Requires an admin token.

Examples:
  nfs4stated session destroy 0000000100000003000000000000000a
  nfs4stated session destroy 0000000100000003000000000000000a --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVarP(&forceDestroy, "force", "f", false, "Skip confirmation prompt")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	id, err := types.ParseSessionID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	sessionID := id.String()

	return cmdutil.RunWithConfirmation(fmt.Sprintf("Destroy session %s", sessionID), forceDestroy, func() error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		if err := client.DestroySession(sessionID); err != nil {
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.IsConflict() {
				return fmt.Errorf("session %s has requests in flight, retry later", sessionID)
			}
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Session %s destroyed", sessionID))
		return nil
	})
}
