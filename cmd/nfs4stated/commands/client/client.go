// Package client implements the NFSv4 client management subcommands.
package client

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/internal/cli/timeutil"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// Cmd is the client subcommand.
var Cmd = &cobra.Command{
	Use:   "client",
	Short: "Manage NFSv4 clients",
	Long: `Inspect and evict the clients registered with the state server.

Clients are identified by their hex client ID as shown by 'client list'.

Subcommands:
  list      List registered clients
  show      Show one client
  sessions  List the sessions of a client
  evict     Evict a client and release all its state`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(sessionsCmd)
	Cmd.AddCommand(evictCmd)
}

// ClientList is a list of clients for table rendering.
type ClientList []state.ClientInfo

// Headers implements TableRenderer.
func (cl ClientList) Headers() []string {
	return []string{"CLIENT_ID", "OWNER", "ADDRESS", "SESSIONS", "STATES", "LEASE", "AGE"}
}

// Rows implements TableRenderer.
func (cl ClientList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{
			cmdutil.FormatClientID(c.ID),
			truncate(c.Owner, 24),
			cmdutil.EmptyOr(c.PeerAddr, "-"),
			fmt.Sprintf("%d", len(c.Sessions)),
			fmt.Sprintf("%d", c.States),
			timeutil.FormatUntil(c.LeaseExpiresAt),
			timeutil.FormatAge(c.CreatedAt),
		})
	}
	return rows
}

// clientFields renders one client as a key-value table.
func clientFields(c *state.ClientInfo) output.Fields {
	return output.Fields{}.
		Add("Client ID", cmdutil.FormatClientID(c.ID)).
		Add("Owner", c.Owner).
		Add("Verifier", c.Verifier).
		Add("Address", cmdutil.EmptyOr(c.PeerAddr, "-")).
		Add("Created", c.CreatedAt.Local().Format(timeutil.LocalTimeFormat)).
		Add("Last renewal", timeutil.FormatAge(c.LastRenewal)+" ago").
		Add("Lease expires", timeutil.FormatUntil(c.LeaseExpiresAt)).
		Add("Sessions", cmdutil.EmptyOr(strings.Join(c.Sessions, ", "), "-")).
		Add("States", fmt.Sprintf("%d", c.States)).
		Add("Lock owners", fmt.Sprintf("%d", c.LockOwners))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
