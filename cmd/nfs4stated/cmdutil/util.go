// Package cmdutil provides shared utilities for the nfs4stated admin
// commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marmos91/nfs4state/internal/cli/credentials"
	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/internal/cli/prompt"
	"github.com/marmos91/nfs4state/pkg/apiclient"
)

// DefaultServerURL is used when neither --server nor a stored context
// names a server.
const DefaultServerURL = "http://localhost:8080"

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	Output    string
	NoColor   bool
}

// GetClient returns an API client for the admin commands. --server and
// --token take precedence over the current stored context. A missing token
// is not an error: the server may run without authentication and will
// answer 401 otherwise.
func GetClient() (*apiclient.Client, error) {
	serverURL, token := Flags.ServerURL, Flags.Token

	if serverURL == "" || token == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential store: %w", err)
		}
		if ctx, err := store.GetCurrentContext(); err == nil {
			if serverURL == "" {
				serverURL = ctx.ServerURL
			}
			if token == "" {
				if ctx.HasToken() && ctx.IsExpired() {
					return nil, fmt.Errorf("token of context %q expired; run 'nfs4stated login' again", store.GetCurrentContextName())
				}
				token = ctx.Token
			}
		}
	}

	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	client := apiclient.New(serverURL)
	if token != "" {
		client = client.WithToken(token)
	}
	return client, nil
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format. For table format it
// prints emptyMsg when isEmpty, otherwise the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	if format == output.FormatTable && isEmpty {
		_, _ = fmt.Fprintln(w, emptyMsg)
		return nil
	}
	return output.Write(w, format, data, tableRenderer)
}

// PrintResource prints a single resource in the selected format.
func PrintResource(w io.Writer, data any, tableRenderer output.TableRenderer) error {
	return PrintOutput(w, data, false, "", tableRenderer)
}

// PrintWarning prints a highlighted warning line.
func PrintWarning(msg string) {
	output.NewPrinter(os.Stdout, !Flags.NoColor).Warning(msg)
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(os.Stdout, !Flags.NoColor).Success(msg)
}

// RunWithConfirmation prompts for confirmation (unless force is set) and
// runs fn.
func RunWithConfirmation(question string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(question, force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// HandleAbort turns a Ctrl+C at a prompt into a clean exit.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// ParseClientID parses a hex client ID, with or without 0x.
func ParseClientID(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil || trimmed == "" {
		return 0, fmt.Errorf("invalid client ID %q: expected a hex value", s)
	}
	return id, nil
}

// FormatClientID renders a client ID the way the API and logs show it.
func FormatClientID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
