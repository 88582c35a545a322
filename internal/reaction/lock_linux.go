//go:build linux

package reaction

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/godbus/dbus/v5"
)

// dbusLocker locks the caller's logind session. When the system bus is
// unreachable it falls back to loginctl, which talks to the same daemon
// but carries its own bus setup.
type dbusLocker struct{}

// NewLocker returns the platform workstation locker.
func NewLocker() Locker {
	return &dbusLocker{}
}

func (dbusLocker) Lock() error {
	if err := lockViaLogind(); err == nil {
		return nil
	}
	cmd := exec.Command("loginctl", "lock-session")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("loginctl lock-session: %w: %s", err, out)
	}
	return nil
}

func lockViaLogind() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()

	var path dbus.ObjectPath
	manager := conn.Object("org.freedesktop.login1", "/org/freedesktop/login1")
	if err := manager.Call("org.freedesktop.login1.Manager.GetSessionByPID", 0, uint32(os.Getpid())).Store(&path); err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	session := conn.Object("org.freedesktop.login1", path)
	if call := session.Call("org.freedesktop.login1.Session.Lock", 0); call.Err != nil {
		return fmt.Errorf("session lock: %w", call.Err)
	}
	return nil
}
