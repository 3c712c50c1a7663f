package progress

import (
	"fmt"
	"io"

	"invoicescraper/pkg/config"
	"invoicescraper/pkg/models"
	"invoicescraper/pkg/ui"
)

// TerminalReporter renders events on the console and raises desktop
// notifications for terminal events
type TerminalReporter struct {
	display  *ui.ProgressDisplay
	notifier *ui.Notifier
	cfg      config.NotificationConfig
}

// NewTerminalReporter creates a console reporter for a run of total amounts.
// A nil notifier disables desktop notifications.
func NewTerminalReporter(out io.Writer, total int, debug bool, notifier *ui.Notifier, cfg config.NotificationConfig) *TerminalReporter {
	return &TerminalReporter{
		display:  ui.NewProgressDisplay(out, total, debug),
		notifier: notifier,
		cfg:      cfg,
	}
}

// Report renders one event
func (t *TerminalReporter) Report(evt Event) {
	switch evt.Type {
	case EventAmountStarted:
		t.display.StartAmount(evt.Amount)
	case EventStatus:
		t.display.Status(evt.Message)
	case EventAmountDone:
		found := evt.InvoiceNumber != models.NotFound && evt.InvoiceNumber != models.Error
		t.display.CompleteAmount(evt.Amount, evt.InvoiceNumber, evt.Shipments, found, evt.InvoiceNumber == models.Error)
	case EventDone:
		t.display.Complete(evt.Path)
		if t.notify(t.cfg.OnComplete) {
			t.notifier.SendSuccess("Extraction complete", summaryLine(evt.Summary))
		}
	case EventError:
		t.display.Fail(evt.Message)
		if t.notify(t.cfg.OnError) {
			t.notifier.SendError("Extraction failed", evt.Message)
		}
	}
}

func (t *TerminalReporter) notify(flag bool) bool {
	return t.notifier != nil && t.cfg.Enabled && flag
}

func summaryLine(s *models.Summary) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%d amounts: %d found, %d not found, %d errors", s.Amounts, s.Found, s.NotFound, s.Errors)
}
