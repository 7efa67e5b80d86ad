//go:build windows

package commands

import (
	"fmt"
	"os"
)

// isProcessRunning reports whether the PID file names a live process.
// Windows offers no signal 0, so FindProcess succeeding is the best test.
func isProcessRunning(pidPath string) (int, bool) {
	pid, err := readPidFile(pidPath)
	if err != nil {
		return 0, false
	}
	if _, err := os.FindProcess(pid); err != nil {
		return 0, false
	}
	return pid, true
}

// startDaemon is not supported on Windows.
func startDaemon() error {
	return fmt.Errorf("daemon mode is not supported on Windows, use --foreground")
}
