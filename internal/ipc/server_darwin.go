//go:build darwin

package ipc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerIdentity reads LOCAL_PEERCRED off an accepted socket. Xucred does
// not carry a PID, so the peer is identified by uid alone.
func peerIdentity(conn net.Conn) (peer, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return peer{}, fmt.Errorf("not a unix connection")
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return peer{}, fmt.Errorf("get raw conn: %w", err)
	}

	var cred *unix.Xucred
	var credErr error

	err = rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	})
	if err != nil {
		return peer{}, fmt.Errorf("control: %w", err)
	}
	if credErr != nil {
		return peer{}, fmt.Errorf("getsockopt: %w", credErr)
	}

	return peer{uid: int(cred.Uid)}, nil
}
