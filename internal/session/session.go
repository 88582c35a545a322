// Package session tracks workstation lock/unlock state from OS-delivered
// session-change notifications. There is no polling loop anywhere in this
// package: every transition comes from a subscription.
//
// Platform support:
//   - Windows: WTSRegisterSessionNotification on a hidden message window
//   - Linux: org.freedesktop.login1 Session Lock/Unlock D-Bus signals
package session

import (
	"context"
	"errors"
	"sync/atomic"
)

// State is the workstation session state.
type State int32

const (
	// Active means the interactive session is unlocked.
	Active State = iota
	// Locked means the workstation is locked.
	Locked
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Monitor is the session-notification capability.
type Monitor interface {
	// Start subscribes to session-change notifications.
	Start(ctx context.Context) error

	// Stop unsubscribes.
	Stop() error

	// State returns the current state via an atomic load; readers never
	// block mid-classification.
	State() State

	// Transitions returns the channel of state changes. Only distinct
	// transitions are delivered.
	Transitions() <-chan State
}

// ErrNotAvailable is returned when session notifications aren't possible
// on this platform.
var ErrNotAvailable = errors.New("session notifications not available on this platform")

// New creates the monitor implementation for the current platform.
func New() Monitor {
	return newPlatformMonitor()
}

// base holds the single-writer/multi-reader state flag and the
// transition channel shared by all implementations.
type base struct {
	state       atomic.Int32
	transitions chan State
}

func newBase() base {
	return base{transitions: make(chan State, 16)}
}

// State returns the current state.
func (b *base) State() State {
	return State(b.state.Load())
}

// Transitions returns the transition channel.
func (b *base) Transitions() <-chan State {
	return b.transitions
}

// setState records a transition; duplicate notifications are collapsed.
func (b *base) setState(s State) {
	if b.state.Swap(int32(s)) == int32(s) {
		return
	}
	select {
	case b.transitions <- s:
	default:
		// A slow consumer loses an intermediate transition but never the
		// current state, which it reads atomically.
	}
}
