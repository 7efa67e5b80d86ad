package context

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
	"github.com/marmos91/nfs4state/internal/cli/prompt"
)

var useCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Switch to a different context",
	Long: `Switch to a different server context.

Without a name, pick the context interactively.

Examples:
  # Switch to context named "production"
  nfs4stated context use production

  # Choose from the saved contexts
  nfs4stated context use`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContextUse,
}

func runContextUse(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	} else {
		name, err = pickContext(store)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
		if name == "" {
			return nil
		}
	}

	if err := store.UseContext(name); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found\n\n"+
				"List available contexts:\n"+
				"  nfs4stated context list", name)
		}
		return fmt.Errorf("failed to switch context: %w", err)
	}

	fmt.Printf("Switched to context: %s\n", name)
	return nil
}

// pickContext returns "" when there is nothing to choose from.
func pickContext(store *credentials.Store) (string, error) {
	names := store.ListContexts()
	if len(names) == 0 {
		fmt.Println("No contexts configured. Use 'nfs4stated login' to add one.")
		return "", nil
	}
	sort.Strings(names)

	options := make([]prompt.SelectOption, 0, len(names))
	for _, n := range names {
		opt := prompt.SelectOption{Label: n, Value: n}
		if c, err := store.GetContext(n); err == nil {
			opt.Description = c.ServerURL
		}
		options = append(options, opt)
	}
	return prompt.Select("Context", options, store.GetCurrentContextName())
}
