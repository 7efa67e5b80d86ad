package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/api"
	"github.com/marmos91/nfs4state/internal/cli/prompt"
	"github.com/marmos91/nfs4state/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample nfs4stated configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/nfs4state/config.yaml.
Use --config to specify a custom path. An existing file is only replaced
after confirmation or with --force.

Examples:
  # Initialize with default location
  nfs4stated init

  # Initialize with custom path
  nfs4stated init --config /etc/nfs4state/config.yaml

  # Force overwrite existing config
  nfs4stated init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		confirmed, err := prompt.Confirm(fmt.Sprintf("Configuration file %s exists. Overwrite", configPath), false)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Choose a lock backend (lock.backend: memory, badger or postgres)")
	fmt.Println("  2. Start the server with: nfs4stated start")
	fmt.Printf("  3. Or specify custom config: nfs4stated start --config %s\n", configPath)
	fmt.Println("  4. Mint an admin token with: nfs4stated token --save")
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", api.EnvJWTSecret)

	return nil
}
