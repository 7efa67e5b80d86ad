// Package locks implements the byte-range lock inspection subcommands.
package locks

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/timeutil"
	"github.com/marmos91/nfs4state/pkg/lock"
)

// rawObject makes object arguments plain text instead of hex keys.
var rawObject bool

// Cmd is the lock subcommand.
var Cmd = &cobra.Command{
	Use:     "lock",
	Aliases: []string{"locks"},
	Short:   "Inspect byte-range locks",
	Long: `Inspect the byte-range locks held in the lock backend.

Objects are addressed by their hex key as shown by 'lock list'. With --raw
the argument is taken as the object ID itself (for example a file handle
string) and hex encoded for you.

Subcommands:
  list   List locked objects
  show   Show the locks on one object
  purge  Drop every lock on one object`,
}

func init() {
	Cmd.PersistentFlags().BoolVar(&rawObject, "raw", false, "Treat object arguments as raw IDs instead of hex keys")
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(purgeCmd)
}

// objectKey turns an object argument into the key the API expects.
func objectKey(arg string) (string, error) {
	if rawObject {
		return lock.ObjectKey([]byte(arg)), nil
	}
	if _, err := lock.ParseObjectKey(arg); err != nil || arg == "" {
		return "", fmt.Errorf("invalid object key %q: expected hex (use --raw for a plain object ID)", arg)
	}
	return arg, nil
}

// LockTable renders the locks of one object.
type LockTable []*lock.Lock

// Headers implements TableRenderer.
func (lt LockTable) Headers() []string {
	return []string{"OWNER", "CLIENT_ID", "TYPE", "OFFSET", "LENGTH", "RECLAIM", "AGE"}
}

// Rows implements TableRenderer.
func (lt LockTable) Rows() [][]string {
	rows := make([][]string, 0, len(lt))
	for _, l := range lt {
		rows = append(rows, []string{
			l.Owner.OwnerID,
			cmdutil.EmptyOr(l.Owner.ClientID, "-"),
			l.Type.String(),
			fmt.Sprintf("%d", l.Offset),
			formatLength(l.Length),
			cmdutil.BoolToYesNo(l.Reclaim),
			timeutil.FormatAge(l.AcquiredAt),
		})
	}
	return rows
}

// formatLength renders to-EOF ranges as "EOF".
func formatLength(length uint64) string {
	if length == 0 || length == math.MaxUint64 {
		return "EOF"
	}
	return fmt.Sprintf("%d", length)
}
