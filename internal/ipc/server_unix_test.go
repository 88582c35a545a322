//go:build !windows

package ipc

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPeerAcceptsSameUser(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "peer.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	defer conn.Close()

	p, err := peerIdentity(conn)
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), p.uid)
	assert.NoError(t, checkPeer(conn))
}
