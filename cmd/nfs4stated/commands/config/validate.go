package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the nfs4stated configuration file.

Checks for syntax errors, missing required fields, and invalid values, then
warns about settings that are legal but likely unintended.

Examples:
  # Validate default config
  nfs4stated config validate

  # Validate specific config file
  nfs4stated config validate --config /etc/nfs4state/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	warnings := Warnings(cfg)

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			cmdutil.PrintWarning("  - " + w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Lock backend:    %s\n", cfg.Lock.Backend)
	fmt.Printf("  Lease time:      %s\n", cfg.State.LeaseTime)
	fmt.Printf("  Grace period:    %s\n", cfg.State.GracePeriod)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

// Warnings lists settings that validate but are probably mistakes.
func Warnings(cfg *config.Config) []string {
	var warnings []string

	if !cfg.API.HasJWTSecret() {
		warnings = append(warnings, "JWT secret not configured - the admin API accepts unauthenticated requests")
	}
	if cfg.Lock.Backend == config.LockBackendMemory && cfg.State.GracePeriod > 0 {
		warnings = append(warnings, "grace period is set but the memory lock backend keeps no locks to reclaim across restarts")
	}
	if cfg.Lock.Backend == config.LockBackendPostgres && !cfg.Lock.Postgres.AutoMigrate {
		warnings = append(warnings, "postgres auto_migrate is off - run 'nfs4stated migrate' after upgrades")
	}
	if cfg.State.LeaseTime > 0 && cfg.State.LeaseTime < 10*time.Second {
		warnings = append(warnings, fmt.Sprintf("lease_time %s is short - clients must renew very often", cfg.State.LeaseTime))
	}
	if cfg.Lock.BlockingTimeout > 0 && cfg.State.LeaseTime > 0 && cfg.Lock.BlockingTimeout > cfg.State.LeaseTime {
		warnings = append(warnings, "lock blocking_timeout exceeds lease_time - a waiter can outlive its own lease")
	}

	return warnings
}
