package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/health"
	"github.com/marmos91/nfs4state/internal/cli/output"
	"github.com/marmos91/nfs4state/internal/cli/timeutil"
	"github.com/marmos91/nfs4state/pkg/apiclient"
	"github.com/marmos91/nfs4state/pkg/config"
)

var statusPidFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the nfs4stated server.

The PID file tells whether a local daemon is running; the health endpoints
of the API report uptime and the state engine: registered clients, locked
objects and whether the grace period is active.

Without --server the API port is read from the configuration file.

Examples:
  # Check status of the local server
  nfs4stated status

  # Check a remote server
  nfs4stated status --server http://state-1:8080

  # Output as JSON
  nfs4stated status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nfs4state/nfs4stated.pid)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running       bool   `json:"running" yaml:"running"`
	PID           int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy       bool   `json:"healthy" yaml:"healthy"`
	Ready         bool   `json:"ready" yaml:"ready"`
	Message       string `json:"message" yaml:"message"`
	StartedAt     string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime        string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Clients       int    `json:"clients" yaml:"clients"`
	LockedObjects int    `json:"locked_objects" yaml:"locked_objects"`
	Distributed   bool   `json:"distributed" yaml:"distributed"`
	InGrace       bool   `json:"in_grace" yaml:"in_grace"`
	BootEpoch     uint32 `json:"boot_epoch,omitempty" yaml:"boot_epoch,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	status := ServerStatus{Message: "Server is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pid, running := isProcessRunning(pidPath); running {
		status.Running = true
		status.PID = pid
	}

	client, err := statusClient()
	if err != nil {
		return err
	}

	if live, err := client.Health(); err == nil {
		status.Running = true
		status.Healthy = live.Healthy()
		status.StartedAt = live.Data.StartedAt
		status.Uptime = live.Data.Uptime

		ready, err := client.Ready()
		switch {
		case err != nil:
			status.Message = fmt.Sprintf("Server is running but not ready: %v", err)
		case ready.Healthy():
			status.Ready = true
			applyReadiness(&status, ready)
			status.Message = "Server is running and ready"
		default:
			status.Message = fmt.Sprintf("Server is running but not ready: %s", ready.Error)
		}
	} else if status.Running {
		status.Message = "Server process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}
	return nil
}

// statusClient targets --server (or the current context) when given,
// otherwise the API port of the local configuration.
func statusClient() (*apiclient.Client, error) {
	if cmdutil.Flags.ServerURL != "" {
		return cmdutil.GetClient()
	}
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return apiclient.New(fmt.Sprintf("http://localhost:%d", cfg.API.Port)), nil
}

func applyReadiness(status *ServerStatus, ready *health.Response) {
	status.Clients = ready.Data.Clients
	status.LockedObjects = ready.Data.LockedObjects
	status.Distributed = ready.Data.Distributed
	status.InGrace = ready.Data.InGrace
	status.BootEpoch = ready.Data.BootEpoch
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("nfs4stated Server Status")
	fmt.Println("========================")
	fmt.Println()

	if !status.Running {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
		fmt.Println()
		fmt.Printf("  %s\n", status.Message)
		fmt.Println()
		return
	}

	if status.Ready {
		fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
	} else {
		fmt.Printf("  Status:     \033[33m● Running (not ready)\033[0m\n")
	}
	if status.PID > 0 {
		fmt.Printf("  PID:        %d\n", status.PID)
	}
	if status.StartedAt != "" {
		fmt.Printf("  Started:    %s\n", timeutil.FormatTime(status.StartedAt))
	}
	if status.Uptime != "" {
		fmt.Printf("  Uptime:     %s\n", timeutil.FormatUptime(status.Uptime))
	}
	if status.Ready {
		fmt.Printf("  Boot epoch: %d\n", status.BootEpoch)
		fmt.Printf("  Clients:    %d\n", status.Clients)
		fmt.Printf("  Locked:     %d objects\n", status.LockedObjects)
		fmt.Printf("  Backend:    %s\n", backendKind(status.Distributed))
		fmt.Printf("  Grace:      %s\n", cmdutil.BoolToYesNo(status.InGrace))
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}

func backendKind(distributed bool) string {
	if distributed {
		return "distributed"
	}
	return "single node"
}
