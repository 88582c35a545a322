//go:build windows

package daemon

import (
	"os"

	"golang.org/x/sys/windows"
)

func isProcessRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == 259 // STILL_ACTIVE
}

// signalStop falls back to os.Process.Kill; Windows has no SIGTERM and
// graceful shutdown goes through the IPC Shutdown request instead.
func signalStop(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}
