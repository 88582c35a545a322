//go:build linux

package ipc

import (
	"fmt"
	"net"
	"syscall"
)

// peerIdentity reads SO_PEERCRED off an accepted socket.
func peerIdentity(conn net.Conn) (peer, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return peer{}, fmt.Errorf("not a unix connection")
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return peer{}, fmt.Errorf("get raw conn: %w", err)
	}

	var cred *syscall.Ucred
	var credErr error

	err = rawConn.Control(func(fd uintptr) {
		cred, credErr = syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	})
	if err != nil {
		return peer{}, fmt.Errorf("control: %w", err)
	}
	if credErr != nil {
		return peer{}, fmt.Errorf("getsockopt: %w", credErr)
	}

	return peer{pid: int(cred.Pid), uid: int(cred.Uid)}, nil
}
