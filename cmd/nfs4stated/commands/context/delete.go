package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Long: `Delete a server context and its stored token.

Examples:
  # Delete context named "staging"
  nfs4stated context delete staging

  # Delete without confirmation
  nfs4stated context delete staging --force`,
	Args: cobra.ExactArgs(1),
	RunE: runContextDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runContextDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	if _, err := store.GetContext(name); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found", name)
		}
		return fmt.Errorf("failed to get context: %w", err)
	}

	return cmdutil.RunWithConfirmation(fmt.Sprintf("Delete context '%s'", name), deleteForce, func() error {
		if err := store.DeleteContext(name); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Context '%s' deleted", name))
		return nil
	})
}
