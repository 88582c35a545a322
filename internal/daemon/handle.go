// Package daemon runs the duckhunt supervisor: single-instance
// enforcement, the service tree, signal handling, and shutdown.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning means another live daemon owns the PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

// State is the persisted daemon state, written next to the PID file for
// the status subcommand.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// Handle owns the PID file for a single daemon instance.
type Handle struct {
	dataDir   string
	pidFile   string
	stateFile string

	acquired bool
}

// NewHandle creates a handle rooted at the daemon data directory.
func NewHandle(dataDir string) *Handle {
	return &Handle{
		dataDir:   dataDir,
		pidFile:   filepath.Join(dataDir, "daemon.pid"),
		stateFile: filepath.Join(dataDir, "daemon.state"),
	}
}

// SocketPath returns the default control socket location under dataDir.
func (h *Handle) SocketPath() string {
	return filepath.Join(h.dataDir, "daemon.sock")
}

// Acquire claims the PID file exclusively. A PID file belonging to a
// live process fails with ErrAlreadyRunning; a stale file from a dead
// process is taken over.
func (h *Handle) Acquire() error {
	if err := os.MkdirAll(h.dataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	f, err := os.OpenFile(h.pidFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err == nil {
		defer f.Close()
		if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
			os.Remove(h.pidFile)
			return fmt.Errorf("write pid file: %w", err)
		}
		h.acquired = true
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("create pid file: %w", err)
	}

	pid, readErr := h.ReadPID()
	if readErr == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	// Stale PID file from a crashed instance, take it over.
	if err := os.WriteFile(h.pidFile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("take over stale pid file: %w", err)
	}
	h.acquired = true
	return nil
}

// Release removes the PID and state files if this handle owns them.
func (h *Handle) Release() {
	if !h.acquired {
		return
	}
	os.Remove(h.pidFile)
	os.Remove(h.stateFile)
	h.acquired = false
}

// ReadPID reads the daemon's PID from the PID file.
func (h *Handle) ReadPID() (int, error) {
	data, err := os.ReadFile(h.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file: %w", err)
	}

	return pid, nil
}

// IsRunning reports whether a daemon currently owns the PID file.
func (h *Handle) IsRunning() bool {
	pid, err := h.ReadPID()
	if err != nil {
		return false
	}
	return isProcessRunning(pid)
}

// WriteState persists the daemon state for the status subcommand.
func (h *Handle) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(h.stateFile, data, 0o600)
}

// ReadState reads the persisted daemon state.
func (h *Handle) ReadState() (*State, error) {
	data, err := os.ReadFile(h.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// SignalStop asks the running daemon to terminate.
func (h *Handle) SignalStop() error {
	pid, err := h.ReadPID()
	if err != nil {
		return fmt.Errorf("read pid: %w", err)
	}
	return signalStop(pid)
}

// WaitForStop waits for the daemon to exit.
func (h *Handle) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if !h.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("daemon did not stop within %v", timeout)
}
