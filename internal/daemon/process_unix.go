//go:build !windows

package daemon

import (
	"os"
	"syscall"
)

// isProcessRunning checks liveness with signal 0; os.FindProcess always
// succeeds on unix.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func signalStop(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(syscall.SIGTERM)
}
