//go:build !linux && !windows

package session

import "context"

// stubMonitor always reports Active; platforms without session
// notifications never pause detection.
type stubMonitor struct {
	base
}

func newPlatformMonitor() Monitor {
	return &stubMonitor{base: newBase()}
}

func (m *stubMonitor) Start(ctx context.Context) error { return nil }

func (m *stubMonitor) Stop() error { return nil }
