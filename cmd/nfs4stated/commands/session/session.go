// Package session implements the NFSv4.1 session management subcommands.
package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/timeutil"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// Cmd is the session subcommand.
var Cmd = &cobra.Command{
	Use:   "session",
	Short: "Manage NFSv4.1 sessions",
	Long: `Inspect and destroy sessions.

Sessions are identified by their 32-character hex session ID.

Subcommands:
  list     List all sessions
  destroy  Destroy a session`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(destroyCmd)
}

// SessionList is a list of sessions for table rendering.
type SessionList []state.SessionInfo

// Headers implements TableRenderer.
func (sl SessionList) Headers() []string {
	return []string{"SESSION_ID", "CLIENT_ID", "SLOTS", "IN_USE", "HIGHEST", "CACHED", "AGE"}
}

// Rows implements TableRenderer.
func (sl SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.ID,
			cmdutil.FormatClientID(s.ClientID),
			fmt.Sprintf("%d/%d", s.ForeSlots, s.BackSlots),
			fmt.Sprintf("%d", s.SlotsInUse),
			highestSlot(s.HighestUsedSlot),
			fmt.Sprintf("%dB", s.CachedBytes),
			timeutil.FormatAge(s.CreatedAt),
		})
	}
	return rows
}

func highestSlot(n int) string {
	if n == state.NoSlotUsed {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}
