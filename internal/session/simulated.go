package session

import "context"

// Simulated is an in-memory monitor for tests and the simulated hook mode.
// Lock and Unlock take the place of OS notifications.
type Simulated struct {
	base
	running bool
}

// NewSimulated creates a simulated monitor in the Active state.
func NewSimulated() *Simulated {
	return &Simulated{base: newBase()}
}

// Start marks the monitor running.
func (s *Simulated) Start(ctx context.Context) error {
	s.running = true
	return nil
}

// Stop marks the monitor stopped.
func (s *Simulated) Stop() error {
	s.running = false
	return nil
}

// Lock simulates a workstation lock notification.
func (s *Simulated) Lock() {
	s.setState(Locked)
}

// Unlock simulates a workstation unlock notification.
func (s *Simulated) Unlock() {
	s.setState(Active)
}
