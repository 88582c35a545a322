//go:build !windows

package ipc

import (
	"net"
	"os"
	"time"
)

// dial connects to the daemon's unix socket.
func dial(socketPath string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.Dial("unix", socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}

	return conn, nil
}
