package progress

import (
	"sync"
	"time"

	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
)

// EventType names a progress event
type EventType string

const (
	EventStarted       EventType = "started"
	EventAmountStarted EventType = "amount_started"
	EventStatus        EventType = "status"
	EventAmountDone    EventType = "amount_done"
	EventLog           EventType = "log"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event is one fire-and-forget progress update
type Event struct {
	Type          EventType       `json:"type"`
	RunID         string          `json:"run_id"`
	Amount        string          `json:"amount,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Shipments     int             `json:"shipments,omitempty"`
	Done          int             `json:"done"`
	Total         int             `json:"total"`
	Percent       float64         `json:"percent"`
	Message       string          `json:"message,omitempty"`
	Level         string          `json:"level,omitempty"`
	Path          string          `json:"path,omitempty"`
	Summary       *models.Summary `json:"summary,omitempty"`
	Time          time.Time       `json:"time"`
}

// Reporter receives progress events. Implementations must not block the run.
type Reporter interface {
	Report(evt Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

// Report calls f
func (f ReporterFunc) Report(evt Event) { f(evt) }

// Nop discards events
type Nop struct{}

// Report does nothing
func (Nop) Report(Event) {}

// Multi fans events out to several reporters. A panicking reporter is logged
// and does not affect the others.
type Multi struct {
	mu        sync.RWMutex
	reporters []Reporter
	logger    logger.Logger
}

// NewMulti creates a fan-out reporter
func NewMulti(log logger.Logger, reporters ...Reporter) *Multi {
	if log == nil {
		log = logger.GetLogger()
	}
	m := &Multi{logger: log.WithField("component", "progress")}
	for _, r := range reporters {
		m.Add(r)
	}
	return m
}

// Add registers a reporter; nil is ignored
func (m *Multi) Add(r Reporter) {
	if r == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

// Report stamps the event time when unset and delivers it to every reporter
func (m *Multi) Report(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	if evt.Percent == 0 && evt.Total > 0 {
		evt.Percent = float64(evt.Done) * 100 / float64(evt.Total)
	}

	m.mu.RLock()
	reporters := append([]Reporter(nil), m.reporters...)
	m.mu.RUnlock()

	for _, r := range reporters {
		m.deliver(r, evt)
	}
}

func (m *Multi) deliver(r Reporter, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.WarnWithFields("Progress reporter panicked", map[string]interface{}{
				"event": string(evt.Type),
				"panic": rec,
			})
		}
	}()
	r.Report(evt)
}
