package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
)

var showCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Show one client",
	Long: `Show the details of one client by its hex client ID.

Examples:
  nfs4stated client show 00000001000000a3
  nfs4stated client show 0x1000000a3 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseClientID(args[0])
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	info, err := client.GetClient(id)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, info, clientFields(info))
}
