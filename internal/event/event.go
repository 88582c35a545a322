// Package event defines the raw key event type and the bounded handoff
// queue between the OS hook callback context and the analysis worker.
//
// IMPORTANT: This package carries timing metadata only - it does NOT capture
// or record which keys are pressed. This is a critical privacy distinction:
//   - Keylogger: Records "h", "e", "l", "l", "o" -> "hello"
//   - This package: Records "a key-down occurred at time T"
//
// The key code is retained solely so modifier-only chatter can be filtered
// by future heuristics; it is never logged or persisted.
package event

import (
	"time"
)

// KeyEvent is a single key-down observation. Produced once by the hook
// adapter, consumed exactly once by the detection engine.
type KeyEvent struct {
	// Timestamp is a monotonic-clock instant (time.Time retains the
	// monotonic reading when taken with time.Now).
	Timestamp time.Time

	// KeyCode is the platform virtual key / scan code.
	KeyCode uint16

	// Synthetic is a best-effort flag for software-simulated input
	// (SendInput on Windows, uinput-backed devices on Linux). Consulted
	// by the engine only when auto-type is disallowed.
	Synthetic bool
}
