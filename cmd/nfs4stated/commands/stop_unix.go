//go:build !windows

package commands

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// stopProcess signals the server: SIGTERM, or SIGKILL when forced.
func stopProcess(_ *os.Process, pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}

	fmt.Printf("Sending %s to process %d...\n", unix.SignalName(sig), pid)

	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return errProcessDone
	}
	if err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}
	return nil
}
