package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/cli/credentials"
	"github.com/marmos91/nfs4state/internal/cli/prompt"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

var loginContext string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a server URL and token",
	Long: `Store the URL and bearer token of an nfs4stated server as a context.

Tokens are minted on the server host with 'nfs4stated token'. The token is
checked against the server before it is saved.

Examples:
  # Prompt for the token
  nfs4stated login --server http://state-1:8080

  # Non-interactive
  nfs4stated login --server http://state-1:8080 --token "$TOKEN"

  # Re-login to the stored server
  nfs4stated login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginContext, "context", "", "Context name (default: the current one, or derived from the server URL)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" {
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  nfs4stated login --server http://localhost:8080")
		}
		serverURL = ctx.ServerURL
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("http://" + serverURL)
		if err != nil {
			return fmt.Errorf("invalid server URL: %w", err)
		}
	}
	serverURL = parsed.String()

	token := cmdutil.Flags.Token
	if token == "" {
		token, err = prompt.Token("Token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	claims, err := auth.PeekClaims(token)
	if err != nil {
		return fmt.Errorf("token is not a valid JWT: %w", err)
	}

	fmt.Printf("Checking token against %s...\n", serverURL)
	if _, err := apiclient.New(serverURL).WithToken(token).ListClients(); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	name := loginContext
	if name == "" {
		name = store.GetCurrentContextName()
	}
	if name == "" {
		name = credentials.GenerateContextName(serverURL)
	}

	entry := &credentials.Context{
		ServerURL: serverURL,
		Subject:   claims.Subject,
		Role:      claims.Role,
		Token:     token,
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time
	}

	if err := store.SetContext(name, entry); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := store.UseContext(name); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	fmt.Printf("Logged in as %s (%s)\n", cmdutil.EmptyOr(claims.Subject, "-"), cmdutil.EmptyOr(claims.Role, "-"))
	fmt.Printf("Context: %s\n", name)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())
	return nil
}
