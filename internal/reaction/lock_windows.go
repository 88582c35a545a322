//go:build windows

package reaction

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procLockWorkStation = user32.NewProc("LockWorkStation")
)

// winLocker calls user32 LockWorkStation, the same lock the user gets
// from Win+L.
type winLocker struct{}

// NewLocker returns the platform workstation locker.
func NewLocker() Locker {
	return &winLocker{}
}

func (winLocker) Lock() error {
	ret, _, err := procLockWorkStation.Call()
	if ret == 0 {
		return fmt.Errorf("LockWorkStation: %w", err)
	}
	return nil
}
