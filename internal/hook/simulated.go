package hook

import (
	"context"
	"sync"
	"time"

	"github.com/qb20nh/duckhunt/internal/event"
)

// Simulated is a hook for testing that never touches the real keyboard.
type Simulated struct {
	mu      sync.Mutex
	sink    Sink
	running bool
}

// NewSimulated creates a simulated hook delivering to sink.
func NewSimulated(sink Sink) *Simulated {
	return &Simulated{sink: sink}
}

// Start marks the hook installed.
func (s *Simulated) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	return nil
}

// Stop marks the hook uninstalled.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Available always reports true.
func (s *Simulated) Available() (bool, string) {
	return true, "simulated hook (for testing)"
}

// Inject delivers a fabricated key event as if the OS observed it.
func (s *Simulated) Inject(ts time.Time, synthetic bool) {
	s.mu.Lock()
	running := s.running
	sink := s.sink
	s.mu.Unlock()
	if running && sink != nil {
		sink(event.KeyEvent{Timestamp: ts, Synthetic: synthetic})
	}
}

// InjectBurst delivers n events spaced by the given interval starting at ts.
func (s *Simulated) InjectBurst(ts time.Time, n int, interval time.Duration) {
	for i := 0; i < n; i++ {
		s.Inject(ts.Add(time.Duration(i)*interval), false)
	}
}
