package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"igreels/pkg/config"
	"igreels/pkg/models"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleScriptString(message), appleScriptString(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	escape := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName('text')
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('igreels').Show($toast)
	`, escape(title), escape(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// platformSender returns the desktop sender for the current OS, or nil
func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier announces run completion and failure according to the
// notification settings. "terminal" prints only and "desktop" also raises a
// desktop notification.
type Notifier struct {
	cfg    config.NotificationConfig
	out    io.Writer
	sender NotificationSender
}

// NewNotifier creates a Notifier writing terminal messages to out
func NewNotifier(cfg config.NotificationConfig, out io.Writer) *Notifier {
	n := &Notifier{cfg: cfg, out: out}
	switch strings.ToLower(cfg.NotificationType) {
	case "none":
		n.cfg.Enabled = false
	case "desktop":
		n.sender = platformSender()
	}
	return n
}

// SetSender overrides the desktop sender
func (n *Notifier) SetSender(s NotificationSender) {
	n.sender = s
}

// NotifyComplete announces a finished run. output is the compiled file, or
// empty when compilation was skipped.
func (n *Notifier) NotifyComplete(target string, result *models.Result, output string) {
	if !n.cfg.Enabled || !n.cfg.OnComplete {
		return
	}

	title := "Harvest complete"
	var message string
	switch {
	case result == nil || result.Empty():
		message = fmt.Sprintf("No reels found with %s", target)
	case output != "":
		message = fmt.Sprintf("%d reels from %s compiled into %s", len(result.Files), target, output)
	default:
		message = fmt.Sprintf("%d reels saved from %s", len(result.Files), target)
	}

	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

// NotifyError announces a failed run
func (n *Notifier) NotifyError(target string, err error) {
	if !n.cfg.Enabled || !n.cfg.OnError || err == nil {
		return
	}

	title := "Harvest failed"
	message := fmt.Sprintf("%s: %v", target, err)

	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// Desktop notification failures are not worth surfacing
	_ = n.sender.Send(title, message)
}
