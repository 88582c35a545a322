//go:build windows

package ipc

import (
	"net"
	"syscall"
	"time"
)

// dial connects to the daemon's named pipe, retrying while the pipe is
// busy with another client.
func dial(socketPath string, timeout time.Duration) (net.Conn, error) {
	pipeName := PipePath(socketPath)
	deadline := time.Now().Add(timeout)

	var handle syscall.Handle
	var err error

	for {
		handle, err = syscall.CreateFile(
			syscall.StringToUTF16Ptr(pipeName),
			syscall.GENERIC_READ|syscall.GENERIC_WRITE,
			0,
			nil,
			syscall.OPEN_EXISTING,
			0,
			0,
		)
		if err == nil {
			break
		}

		errno, ok := err.(syscall.Errno)
		if ok && errno == syscall.ERROR_FILE_NOT_FOUND {
			return nil, ErrDaemonNotRunning
		}
		if !ok || errno != 231 { // ERROR_PIPE_BUSY
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		time.Sleep(100 * time.Millisecond)
	}

	return &pipeConn{handle: handle, pipeName: pipeName}, nil
}
