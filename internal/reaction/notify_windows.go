//go:build windows

package reaction

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// toastScript raises a standard toast through the WinRT notification
// manager. PowerShell is the only stock way to reach that API from a
// plain win32 process.
const toastScript = `
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
$xml = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$texts = $xml.GetElementsByTagName("text")
$texts.Item(0).AppendChild($xml.CreateTextNode($env:DUCKHUNT_TITLE)) | Out-Null
$texts.Item(1).AppendChild($xml.CreateTextNode($env:DUCKHUNT_BODY)) | Out-Null
$toast = [Windows.UI.Notifications.ToastNotification]::new($xml)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("duckhunt").Show($toast)
`

// toastNotifier shells out to PowerShell for a toast. Failures are
// reported to the caller and otherwise ignored.
type toastNotifier struct{}

// NewNotifier returns the platform notifier.
func NewNotifier() Notifier {
	return &toastNotifier{}
}

func (toastNotifier) Notify(title, body string) error {
	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", strings.TrimSpace(toastScript))
	cmd.Env = append(cmd.Environ(),
		"DUCKHUNT_TITLE="+title,
		"DUCKHUNT_BODY="+body,
	)

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start powershell: %w", err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("toast notification: %w", err)
		}
		return nil
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		return fmt.Errorf("toast notification timed out")
	}
}
