package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const appName = "Tumblr Backup"

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender uses notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name", appName, title, message).Run()
}

// MacOSNotificationSender uses osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleScriptQuote(message), appleScriptQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender shows a toast through PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode(%s)) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode(%s)) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier(%s).Show($toast)
	`, powerShellQuote(title), powerShellQuote(message), powerShellQuote(appName))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier echoes to the terminal and, when enabled, raises a desktop
// notification. A nil sender keeps it terminal-only.
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks the sender for the current platform. With desktop
// false, or on an unsupported platform, notifications stay in the terminal.
func NewNotifier(desktop bool) *Notifier {
	if !desktop {
		return &Notifier{}
	}
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	case "windows":
		sender = &WindowsNotificationSender{}
	}
	return &Notifier{sender: sender}
}

// NewNotifierWithSender is for tests and custom integrations
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendSuccess reports a finished run
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(writer(), "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

// SendError reports a failed run
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(writer(), "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n == nil || n.sender == nil {
		return
	}
	// a missing notify-send or osascript must not fail the backup
	_ = n.sender.Send(title, message)
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powerShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
