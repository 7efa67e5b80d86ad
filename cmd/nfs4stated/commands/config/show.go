package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/pkg/config"
)

var showRedact bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration nfs4stated would run with: the file merged
with environment overrides and defaults.

Table output is rendered as YAML. Secrets are redacted unless
--redact=false is given.

Examples:
  # Show effective config as YAML
  nfs4stated config show

  # Show as JSON
  nfs4stated config show -o json

  # Show specific config file
  nfs4stated config show --config /etc/nfs4state/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().BoolVar(&showRedact, "redact", true, "Hide the JWT secret and database password")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	if showRedact {
		redact(cfg)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	return output.PrintYAML(os.Stdout, cfg)
}

const redacted = "********"

func redact(cfg *config.Config) {
	if cfg.API.JWT.Secret != "" {
		cfg.API.JWT.Secret = redacted
	}
	if cfg.Lock.Postgres.Password != "" {
		cfg.Lock.Postgres.Password = redacted
	}
	if cfg.Lock.Postgres.URL != "" {
		cfg.Lock.Postgres.URL = redacted
	}
}
