package driver

import (
	"errors"
	"sync"
)

// State is a driver workflow state
type State string

const (
	StateIdle                 State = "IDLE"
	StateNavigateList         State = "NAVIGATE_LIST"
	StateLocateAndOpenInvoice State = "LOCATE_AND_OPEN_INVOICE"
	StateReturnToInvoice      State = "RETURN_TO_INVOICE"
	StateOpenShipment         State = "OPEN_SHIPMENT"
	StateScrapeShipment       State = "SCRAPE_SHIPMENT"
	StateFinalizeAmount       State = "FINALIZE_AMOUNT"
	StateExport               State = "EXPORT"
	StateCompleted            State = "COMPLETED"
	StateCancelled            State = "CANCELLED"
	StateFatal                State = "FATAL"
)

// Terminal reports whether s ends a run
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFatal
}

// ErrCancelled is returned by Run when the cancel token was set
var ErrCancelled = errors.New("run cancelled")

// CancelToken is a cooperative cancel signal checked before each amount and
// before each shipment. It does not interrupt in-flight agent calls.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancelToken creates an unset token
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel sets the token; calling it more than once is safe
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done is closed when the token is cancelled
func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}
