//go:build linux

package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	login1Service    = "org.freedesktop.login1"
	login1Manager    = "org.freedesktop.login1.Manager"
	login1Session    = "org.freedesktop.login1.Session"
	login1Path       = "/org/freedesktop/login1"
	sessionLockSig   = login1Session + ".Lock"
	sessionUnlockSig = login1Session + ".Unlock"
)

// dbusMonitor subscribes to Lock/Unlock signals on the caller's logind
// session object. The signals are emitted by logind when a display
// manager locks or unlocks the seat, so no polling is required.
type dbusMonitor struct {
	base

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPlatformMonitor() Monitor {
	return &dbusMonitor{base: newBase()}
}

func (m *dbusMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return fmt.Errorf("session monitor already started")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	sessionPath, err := sessionForPID(conn, os.Getpid())
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(login1Session),
	); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to session signals: %w", err)
	}

	// Catch up with the state that existed before we subscribed, so a
	// daemon started on a locked workstation does not classify input
	// delivered to the lock screen.
	if locked, err := lockedHint(conn, sessionPath); err == nil && locked {
		m.state.Store(int32(Locked))
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	runCtx, cancel := context.WithCancel(ctx)
	m.conn = conn
	m.signals = signals
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.receiveLoop(runCtx, signals)
	return nil
}

func (m *dbusMonitor) receiveLoop(ctx context.Context, signals chan *dbus.Signal) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch sig.Name {
			case sessionLockSig:
				m.setState(Locked)
			case sessionUnlockSig:
				m.setState(Active)
			}
		}
	}
}

func (m *dbusMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	m.cancel()
	m.conn.RemoveSignal(m.signals)
	err := m.conn.Close()
	<-m.done
	m.conn = nil
	return err
}

// sessionForPID resolves the logind session object owning the given pid.
func sessionForPID(conn *dbus.Conn, pid int) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	obj := conn.Object(login1Service, login1Path)
	if err := obj.Call(login1Manager+".GetSessionByPID", 0, uint32(pid)).Store(&path); err != nil {
		return "", fmt.Errorf("resolve session for pid %d: %w", pid, err)
	}
	return path, nil
}

// lockedHint reads the session's LockedHint property.
func lockedHint(conn *dbus.Conn, path dbus.ObjectPath) (bool, error) {
	variant, err := conn.Object(login1Service, path).GetProperty(login1Session + ".LockedHint")
	if err != nil {
		return false, err
	}
	locked, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected LockedHint type %T", variant.Value())
	}
	return locked, nil
}
