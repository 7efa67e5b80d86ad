// Package context implements context management subcommands.
package context

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
)

// Cmd is the context subcommand.
var Cmd = &cobra.Command{
	Use:   "context",
	Short: "Manage server contexts",
	Long: `Manage connection contexts for multiple nfs4stated servers.

A context pairs a server URL with a bearer token. Admin commands use the
current context unless --server or --token is given.

Subcommands:
  list     List all configured contexts
  use      Switch to a different context
  current  Show current context
  delete   Delete a context`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(useCmd)
	Cmd.AddCommand(currentCmd)
	Cmd.AddCommand(deleteCmd)
}

// ContextInfo represents context information for output.
type ContextInfo struct {
	Name      string `json:"name" yaml:"name"`
	Current   bool   `json:"current" yaml:"current"`
	ServerURL string `json:"server_url" yaml:"server_url"`
	Subject   string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Role      string `json:"role,omitempty" yaml:"role,omitempty"`
	LoggedIn  bool   `json:"logged_in" yaml:"logged_in"`
}

func newContextInfo(name, current string, ctx *credentials.Context) ContextInfo {
	return ContextInfo{
		Name:      name,
		Current:   name == current,
		ServerURL: ctx.ServerURL,
		Subject:   ctx.Subject,
		Role:      ctx.Role,
		LoggedIn:  ctx.HasToken() && !ctx.IsExpired(),
	}
}

// ContextList is a list of contexts for table rendering.
type ContextList []ContextInfo

// Headers implements TableRenderer.
func (cl ContextList) Headers() []string {
	return []string{"", "NAME", "SERVER", "SUBJECT", "ROLE", "LOGGED IN"}
}

// Rows implements TableRenderer.
func (cl ContextList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		current := ""
		if c.Current {
			current = "*"
		}
		rows = append(rows, []string{
			current,
			c.Name,
			c.ServerURL,
			cmdutil.EmptyOr(c.Subject, "-"),
			cmdutil.EmptyOr(c.Role, "-"),
			cmdutil.BoolToYesNo(c.LoggedIn),
		})
	}
	return rows
}
