package locks

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locked objects",
	Long: `List the objects that hold at least one lock, with the number of
blocked requests waiting on this server.

Examples:
  nfs4stated lock list
  nfs4stated lock list -o json`,
	RunE: runList,
}

// objectTable renders the object keys.
type objectTable struct {
	list *apiclient.ObjectList
}

// Headers implements TableRenderer.
func (o objectTable) Headers() []string {
	return []string{"OBJECT"}
}

// Rows implements TableRenderer.
func (o objectTable) Rows() [][]string {
	rows := make([][]string, 0, len(o.list.Objects))
	for _, obj := range o.list.Objects {
		rows = append(rows, []string{obj})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	list, err := client.ListLockedObjects()
	if err != nil {
		return fmt.Errorf("failed to list locked objects: %w", err)
	}

	if err := cmdutil.PrintOutput(os.Stdout, list, list.Count == 0, "No locked objects.", objectTable{list: list}); err != nil {
		return err
	}

	if format, _ := cmdutil.GetOutputFormatParsed(); format == output.FormatTable && list.Count > 0 {
		fmt.Printf("\n%d objects, %d blocked requests (%s backend)\n", list.Count, list.Blocked, backendKind(list.Distributed))
	}
	return nil
}

func backendKind(distributed bool) string {
	if distributed {
		return "distributed"
	}
	return "single node"
}
