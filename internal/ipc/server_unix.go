//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// peer identifies the process on the other end of an accepted
// connection. pid is zero where the platform cannot supply it.
type peer struct {
	pid int
	uid int
}

// checkPeer rejects connections from other users. The socket file mode
// already restricts access; credentials close the race with a mode
// change after listen.
func checkPeer(conn net.Conn) error {
	p, err := peerIdentity(conn)
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}
	if p.uid != os.Getuid() {
		return fmt.Errorf("peer uid %d (pid %d) is not the daemon user", p.uid, p.pid)
	}
	return nil
}

// newListener creates the unix socket listener, replacing any stale
// socket file, with owner-only permissions.
func newListener(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	if err := CleanupSocket(socketPath); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}

	return listener, nil
}

// CleanupSocket removes a stale socket file
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Only remove if it's a socket
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a daemon is already serving the socket
func IsSocketListening(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
