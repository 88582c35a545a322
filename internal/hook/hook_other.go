//go:build !linux && !windows

package hook

import (
	"context"
	"runtime"
)

// stubHook is used on unsupported platforms.
type stubHook struct {
	sink Sink
}

func newPlatformHook(sink Sink) Hook {
	return &stubHook{sink: sink}
}

// Available returns false on unsupported platforms.
func (s *stubHook) Available() (bool, string) {
	return false, "keystroke observation not implemented for " + runtime.GOOS
}

// Start returns an error on unsupported platforms.
func (s *stubHook) Start(ctx context.Context) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *stubHook) Stop() error {
	return nil
}
