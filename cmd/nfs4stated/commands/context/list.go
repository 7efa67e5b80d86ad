package context

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured contexts",
	Long: `List all configured server contexts.

The current context is marked with an asterisk (*).

Examples:
  # List contexts as table
  nfs4stated context list

  # List as JSON
  nfs4stated context list -o json`,
	RunE: runContextList,
}

func runContextList(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	current := store.GetCurrentContextName()
	names := store.ListContexts()

	contexts := make(ContextList, 0, len(names))
	for _, name := range names {
		ctx, err := store.GetContext(name)
		if err != nil {
			continue
		}
		contexts = append(contexts, newContextInfo(name, current, ctx))
	}

	return cmdutil.PrintOutput(os.Stdout, contexts, len(contexts) == 0,
		"No contexts configured. Use 'nfs4stated login --server <url>' to create one.", contexts)
}
