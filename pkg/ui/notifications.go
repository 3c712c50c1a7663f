package ui

import (
	"fmt"
	"html"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const appName = "Invoice Scraper"

// NotificationSender raises a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// CommandSender raises notifications by running a platform tool
type CommandSender struct {
	build func(title, message string) *exec.Cmd
}

// Send runs the notification command and waits for it
func (c CommandSender) Send(title, message string) error {
	return c.build(title, message).Run()
}

// PlatformSender returns the sender for goos, or nil when the platform has
// no supported notification tool
func PlatformSender(goos string) NotificationSender {
	switch goos {
	case "linux":
		return CommandSender{build: notifySendCommand}
	case "darwin":
		return CommandSender{build: osascriptCommand}
	case "windows":
		return CommandSender{build: toastCommand}
	}
	return nil
}

func notifySendCommand(title, message string) *exec.Cmd {
	return exec.Command("notify-send", "--app-name", appName, title, message)
}

func osascriptCommand(title, message string) *exec.Cmd {
	return exec.Command("osascript", "-e", appleScript(title, message))
}

func toastCommand(title, message string) *exec.Cmd {
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", toastScript(title, message))
}

// appleScript builds a display notification statement with both strings
// quoted for AppleScript
func appleScript(title, message string) string {
	return fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
}

func appleQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// toastScript renders a ToastText02 notification. Text is XML escaped and
// the here-string keeps PowerShell from expanding it.
func toastScript(title, message string) string {
	return strings.Join([]string{
		`[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null`,
		`[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null`,
		`$xml = @'`,
		fmt.Sprintf(`<toast><visual><binding template="ToastText02"><text id="1">%s</text><text id="2">%s</text></binding></visual></toast>`,
			html.EscapeString(title), html.EscapeString(message)),
		`'@`,
		`$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()`,
		`$doc.LoadXml($xml)`,
		fmt.Sprintf(`[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier(%q).Show([Windows.UI.Notifications.ToastNotification]::new($doc))`, appName),
	}, "\n")
}

// Notifier prints run events and mirrors them as desktop notifications
type Notifier struct {
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a Notifier for the current platform printing to stdout
func NewNotifier() *Notifier {
	return NewNotifierWithSender(PlatformSender(runtime.GOOS), os.Stdout)
}

// NewNotifierWithSender creates a Notifier with an explicit sender and console
// writer. A nil sender only prints.
func NewNotifierWithSender(sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, out: out}
}

// SendNotification prints an informational event
func (n *Notifier) SendNotification(title, message string) {
	n.send(Cyan(title), Yellow(message), title, message)
}

// SendError prints a failure
func (n *Notifier) SendError(title, message string) {
	n.send(Red(title), Red(message), title, message)
}

// SendSuccess prints a completed run
func (n *Notifier) SendSuccess(title, message string) {
	n.send(Green(title), Green(message), title, message)
}

func (n *Notifier) send(coloredTitle, coloredMessage, title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", coloredTitle, coloredMessage)

	// desktop notifications are best-effort
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}
