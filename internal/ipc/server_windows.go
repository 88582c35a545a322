//go:build windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"
)

// Named pipe constants
const (
	pipeAccessDuplex       = 0x00000003
	pipeTypeMessage        = 0x00000004
	pipeReadmodeMessage    = 0x00000002
	pipeWait               = 0x00000000
	pipeUnlimitedInstances = 255

	pipeBufferSize = 64 * 1024
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procCreateNamedPipeW = kernel32.NewProc("CreateNamedPipeW")
	procConnectNamedPipe = kernel32.NewProc("ConnectNamedPipe")
	procDisconnectPipe   = kernel32.NewProc("DisconnectNamedPipe")
)

// checkPeer relies on the pipe DACL: the pipe is created with default
// security, which grants access to the creating user only.
func checkPeer(conn net.Conn) error {
	return nil
}

// newListener creates the named pipe listener.
func newListener(socketPath string) (net.Listener, error) {
	return &pipeListener{pipeName: PipePath(socketPath)}, nil
}

// CleanupSocket is a no-op on Windows (pipes are managed by the system)
func CleanupSocket(path string) error {
	return nil
}

// IsSocketListening checks if a daemon is already serving the pipe
func IsSocketListening(path string) bool {
	handle, err := syscall.CreateFile(
		syscall.StringToUTF16Ptr(PipePath(path)),
		syscall.GENERIC_READ|syscall.GENERIC_WRITE,
		0,
		nil,
		syscall.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return false
	}
	syscall.CloseHandle(handle)
	return true
}

// PipePath converts a socket path to a per-user named pipe path.
func PipePath(socketPath string) string {
	baseName := filepath.Base(socketPath)
	username := os.Getenv("USERNAME")
	if username == "" {
		username = "default"
	}
	return fmt.Sprintf(`\\.\pipe\duckhunt-%s-%s`, username, baseName)
}

func createNamedPipe(name string) (syscall.Handle, error) {
	pipeName, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return syscall.InvalidHandle, err
	}

	// Message mode keeps frames atomic.
	handle, _, err := procCreateNamedPipeW.Call(
		uintptr(unsafe.Pointer(pipeName)),
		pipeAccessDuplex,
		pipeTypeMessage|pipeReadmodeMessage|pipeWait,
		pipeUnlimitedInstances,
		pipeBufferSize,
		pipeBufferSize,
		0,
		0, // Default security (current user)
	)

	if handle == uintptr(syscall.InvalidHandle) {
		return syscall.InvalidHandle, err
	}

	return syscall.Handle(handle), nil
}

func connectNamedPipe(handle syscall.Handle) error {
	r, _, err := procConnectNamedPipe.Call(uintptr(handle), 0)
	if r == 0 {
		errno, ok := err.(syscall.Errno)
		if ok && errno == 535 { // ERROR_PIPE_CONNECTED
			return nil
		}
		return err
	}
	return nil
}

func disconnectNamedPipe(handle syscall.Handle) error {
	r, _, err := procDisconnectPipe.Call(uintptr(handle))
	if r == 0 {
		return err
	}
	return nil
}

// pipeListener implements net.Listener for Windows named pipes
type pipeListener struct {
	pipeName string
	closed   bool
}

// Accept waits for and returns the next connection
func (l *pipeListener) Accept() (net.Conn, error) {
	if l.closed {
		return nil, net.ErrClosed
	}

	handle, err := createNamedPipe(l.pipeName)
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}

	if err := connectNamedPipe(handle); err != nil {
		syscall.CloseHandle(handle)
		return nil, fmt.Errorf("connect pipe: %w", err)
	}

	return &pipeConn{handle: handle, pipeName: l.pipeName}, nil
}

// Close closes the listener
func (l *pipeListener) Close() error {
	l.closed = true
	return nil
}

// Addr returns the listener's network address
func (l *pipeListener) Addr() net.Addr {
	return &pipeAddr{name: l.pipeName}
}

// pipeConn implements net.Conn for Windows named pipes
type pipeConn struct {
	handle   syscall.Handle
	pipeName string
}

func (c *pipeConn) Read(b []byte) (int, error) {
	var n uint32
	err := syscall.ReadFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Write(b []byte) (int, error) {
	var n uint32
	err := syscall.WriteFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Close() error {
	disconnectNamedPipe(c.handle)
	return syscall.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr  { return &pipeAddr{name: c.pipeName} }
func (c *pipeConn) RemoteAddr() net.Addr { return &pipeAddr{name: c.pipeName} }

// Named pipes would need overlapped I/O for deadlines; blocking reads
// are acceptable for the short-lived control connections here.
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// pipeAddr implements net.Addr for Windows named pipes
type pipeAddr struct {
	name string
}

func (a *pipeAddr) Network() string { return "pipe" }
func (a *pipeAddr) String() string  { return a.name }
