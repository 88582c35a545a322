//go:build linux

package reaction

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const notifyCriticalUrgency = byte(2)

// dbusNotifier delivers desktop notifications over
// org.freedesktop.Notifications on the session bus.
type dbusNotifier struct{}

// NewNotifier returns the platform notifier.
func NewNotifier() Notifier {
	return &dbusNotifier{}
}

func (dbusNotifier) Notify(title, body string) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"duckhunt",      // app_name
		uint32(0),       // replaces_id
		"security-high", // app_icon
		title,
		body,
		[]string{}, // actions
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(notifyCriticalUrgency)},
		int32(0), // expire_timeout: server default
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return nil
}
