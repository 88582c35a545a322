package config

import (
	"sync/atomic"
)

// Store holds the live detection snapshot and the enabled flag.
//
// The detection engine reads the snapshot once per classified event via
// an atomic pointer load, so an update is never observed half-applied.
// Writes go through the daemon only (IPC UpdateConfig or file reload);
// the store is single-writer, many-reader.
type Store struct {
	detection atomic.Pointer[Detection]
	enabled   atomic.Bool
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(d Detection, enabled bool) *Store {
	s := &Store{}
	s.detection.Store(&d)
	s.enabled.Store(enabled)
	return s
}

// Detection returns the current snapshot. The returned value is a copy;
// callers hold it for the duration of one decision.
func (s *Store) Detection() Detection {
	return *s.detection.Load()
}

// SwapDetection validates and atomically installs a new snapshot. The
// swap takes effect for the next classified event, never mid-decision.
func (s *Store) SwapDetection(d Detection) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.detection.Store(&d)
	return nil
}

// Enabled reports whether monitoring is active.
func (s *Store) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled toggles monitoring and reports whether the value changed,
// which keeps Enable/Disable idempotent across client retries.
func (s *Store) SetEnabled(enabled bool) bool {
	return s.enabled.Swap(enabled) != enabled
}
