//go:build !linux && !windows

package reaction

import "errors"

var errUnsupported = errors.New("workstation lock not supported on this platform")

type noopLocker struct{}

// NewLocker returns the platform workstation locker.
func NewLocker() Locker {
	return noopLocker{}
}

func (noopLocker) Lock() error { return errUnsupported }

type noopNotifier struct{}

// NewNotifier returns the platform notifier.
func NewNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(title, body string) error { return nil }
