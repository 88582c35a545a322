// Package hook provides the system-wide keystroke observation capability.
//
// IMPORTANT: This package observes that keys were pressed - it does NOT
// capture or record which keys are pressed. Only the event timestamp, a
// numeric key code, and a best-effort synthetic-input flag leave this
// package, and the key code is never logged or persisted.
//
// The OS callback path must complete in bounded, sub-millisecond time:
// implementations timestamp the event and hand it to the sink, nothing
// else. Blocking in the callback risks the OS silently removing the hook
// and with it all protection.
//
// Platform support:
//   - Windows: low-level keyboard hook (WH_KEYBOARD_LL); the
//     LLKHF_INJECTED flag marks SendInput-style synthetic events
//   - Linux: /dev/input/event* readers (requires input group or root);
//     uinput-backed devices mark events synthetic
package hook

import (
	"context"
	"errors"

	"github.com/qb20nh/duckhunt/internal/event"
)

// Sink receives each observed key-down. It must be non-blocking; the
// event queue's Push satisfies this.
type Sink func(event.KeyEvent)

// Hook is the keystroke observation capability.
type Hook interface {
	// Start installs the hook and begins delivering events to the sink.
	// Returns an error if installation fails; the daemon treats that as
	// a fatal startup condition.
	Start(ctx context.Context) error

	// Stop uninstalls the hook. Events already in flight may still reach
	// the sink briefly after Stop returns.
	Stop() error

	// Available reports whether hooking works on this platform with the
	// current permissions, with a human-readable explanation.
	Available() (bool, string)
}

// ErrNotAvailable is returned when keystroke observation isn't possible
// on this platform.
var ErrNotAvailable = errors.New("keystroke observation not available on this platform")

// ErrPermissionDenied is returned when permissions are insufficient.
var ErrPermissionDenied = errors.New("insufficient permissions for keystroke observation")

// ErrAlreadyRunning is returned when Start is called twice.
var ErrAlreadyRunning = errors.New("hook already installed")

// New creates the hook implementation for the current platform.
func New(sink Sink) Hook {
	return newPlatformHook(sink)
}
