package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
	"github.com/marmos91/nfs4state/pkg/config"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
	tokenSave    bool
	tokenContext string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	Long: `Mint a bearer token for the admin API, signed with the configured JWT
secret. Anyone holding the secret can mint tokens, so this runs on the
server host.

The token is printed; with --save it is also stored as a context so that
subsequent admin commands use it.

Examples:
  # Print an admin token valid for the configured duration
  nfs4stated token

  # Read-only token for a dashboard, valid for a week
  nfs4stated token --role viewer --subject grafana --ttl 168h

  # Store the token in the current context
  nfs4stated token --save`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "Token role (admin|viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: api.jwt.token_duration)")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "Store the token as a context")
	tokenCmd.Flags().StringVar(&tokenContext, "context", "", "Context name for --save (default: derived from the server URL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	jwtService, err := cfg.API.NewJWTService()
	if err != nil {
		return fmt.Errorf("cannot mint tokens: %w", err)
	}

	token, expiresAt, err := jwtService.GenerateToken(tokenSubject, tokenRole, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	if !tokenSave {
		fmt.Println(token)
		return nil
	}

	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://localhost:%d", cfg.API.Port)
	}

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	name := tokenContext
	if name == "" {
		name = credentials.GenerateContextName(serverURL)
	}
	if err := store.SetContext(name, &credentials.Context{
		ServerURL: serverURL,
		Subject:   tokenSubject,
		Role:      tokenRole,
		Token:     token,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := store.UseContext(name); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	fmt.Printf("Token for %s (%s) saved to context %s\n", tokenSubject, tokenRole, name)
	fmt.Printf("Expires: %s\n", expiresAt.Local().Format(time.RFC1123))
	return nil
}
