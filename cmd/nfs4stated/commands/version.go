package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/cmdutil"
	"github.com/marmos91/nfs4state/internal/cli/output"
)

var versionShort bool

// VersionInfo is the machine-readable form of the version command.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Built     string `json:"built" yaml:"built"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func versionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		Built:     Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the nfs4stated version and build information.

Examples:
  nfs4stated version
  nfs4stated version --short
  nfs4stated version -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			fmt.Println(Version)
			return nil
		}

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		info := versionInfo()
		if format != output.FormatTable {
			return output.Write(os.Stdout, format, info, nil)
		}
		fmt.Printf("nfs4stated %s\n", info.Version)
		fmt.Printf("  Commit:     %s\n", info.Commit)
		fmt.Printf("  Built:      %s\n", info.Built)
		fmt.Printf("  Go version: %s\n", info.GoVersion)
		fmt.Printf("  Platform:   %s\n", info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}
