// Package commands implements the nfs4stated command line: server
// lifecycle commands plus the admin commands that talk to a running
// server's API.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/client"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/config"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/context"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/grace"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/locks"
	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands/session"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nfs4stated",
	Short: "nfs4stated - NFSv4 client, session and lock state server",
	Long: `nfs4stated keeps the stateful half of an NFSv4.1 server: the client
registry with its leases, sessions with exactly-once slot tables, stateids
and byte-range locks on a memory, badger or postgres backend.

Server commands (start, stop, status, logs, init, migrate, config) act on the
local installation. Admin commands (client, session, lock, grace) talk to a
running server over its HTTP API.

Use "nfs4stated [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	apiclient.UserAgent = "nfs4stated-cli/" + Version
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfs4state/config.yaml)")
	pf.StringVar(&cmdutil.Flags.ServerURL, "server", "", "Server URL of the admin API (overrides the current context)")
	pf.StringVar(&cmdutil.Flags.Token, "token", "", "Bearer token for the admin API (overrides the current context)")
	pf.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	pf.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(context.Cmd)
	rootCmd.AddCommand(client.Cmd)
	rootCmd.AddCommand(session.Cmd)
	rootCmd.AddCommand(locks.Cmd)
	rootCmd.AddCommand(grace.Cmd)

	// We provide our own completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
