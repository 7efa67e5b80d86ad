package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/marmos91/nfs4state/cmd/nfs4stated/commands"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = ""
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = resolveVersion()
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags value, then the module version that
// `go install` records, then "dev".
func resolveVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
