package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/internal/cli/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	Long: `Clear the token of the current context.

The server URL and context stay, so 'nfs4stated login' can reuse them.

Examples:
  # Logout from current context
  nfs4stated logout`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	name := store.GetCurrentContextName()
	if name == "" {
		return fmt.Errorf("not logged in - no current context")
	}

	if err := store.ClearCurrentContext(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	fmt.Printf("Logged out from context: %s\n", name)
	return nil
}
