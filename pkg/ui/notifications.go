package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// AppName is the notification title prefix and Windows toast source
const AppName = "streetviewdl"

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// CommandSender runs an external notifier built by Build
type CommandSender struct {
	Build func(title, message string) *exec.Cmd
}

func (c CommandSender) Send(title, message string) error {
	return c.Build(title, message).Run()
}

const toastScript = `
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
$doc.LoadXml('<toast><visual><binding template="ToastText02"><text id="1">%s</text><text id="2">%s</text></binding></visual></toast>')
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('%s').Show([Windows.UI.Notifications.ToastNotification]::new($doc))
`

// platformSenders holds the notifier command for each supported GOOS
var platformSenders = map[string]CommandSender{
	"linux": {Build: func(title, message string) *exec.Cmd {
		return exec.Command("notify-send", "--app-name="+AppName, title, message)
	}},
	"darwin": {Build: func(title, message string) *exec.Cmd {
		return exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", message, title))
	}},
	"windows": {Build: func(title, message string) *exec.Cmd {
		script := fmt.Sprintf(toastScript, psQuote(xmlEscape(title)), psQuote(xmlEscape(message)), AppName)
		return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	}},
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// psQuote doubles single quotes for a PowerShell single-quoted string
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Notifier prints run events and mirrors them as desktop notifications
type Notifier struct {
	sender NotificationSender
	out    io.Writer
}

// NewNotifier picks the sender for the current platform
func NewNotifier() *Notifier {
	if sender, ok := platformSenders[runtime.GOOS]; ok {
		return NewNotifierWithSender(sender, os.Stdout)
	}
	return NewNotifierWithSender(nil, os.Stdout)
}

// NewNotifierWithSender uses sender, which may be nil, and prints to out
func NewNotifierWithSender(sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, out: out}
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		// desktop notifications are best effort
		_ = n.sender.Send(AppName+": "+title, message)
	}
}

// SendNotification prints an informational event
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError prints a failure
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess prints a success
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}
