package context

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show current context",
	Long: `Display information about the current active context.

Examples:
  # Show current context
  nfs4stated context current

  # Show as JSON
  nfs4stated context current -o json`,
	RunE: runContextCurrent,
}

// currentContext adds the token expiry to the list entry.
type currentContext struct {
	ContextInfo `yaml:",inline"`
	ExpiresAt   string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func (c currentContext) Headers() []string { return []string{"FIELD", "VALUE"} }

func (c currentContext) Rows() [][]string {
	return [][]string{
		{"Name", c.Name},
		{"Server", c.ServerURL},
		{"Subject", cmdutil.EmptyOr(c.Subject, "-")},
		{"Role", cmdutil.EmptyOr(c.Role, "-")},
		{"Logged in", cmdutil.BoolToYesNo(c.LoggedIn)},
		{"Expires", cmdutil.EmptyOr(c.ExpiresAt, "never")},
	}
}

func runContextCurrent(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	name := store.GetCurrentContextName()
	if name == "" {
		return fmt.Errorf("no current context set\n\n" +
			"Login to a server first:\n" +
			"  nfs4stated login --server http://localhost:8080")
	}

	ctx, err := store.GetContext(name)
	if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}

	info := currentContext{ContextInfo: newContextInfo(name, name, ctx)}
	if !ctx.ExpiresAt.IsZero() {
		info.ExpiresAt = ctx.ExpiresAt.Format(time.RFC3339)
	}

	return cmdutil.PrintResource(os.Stdout, info, info)
}
