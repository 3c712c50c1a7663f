package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

// Timeouts bounds every agent call by action
type Timeouts struct {
	Locate       time.Duration
	Click        time.Duration
	Scrape       time.Duration
	NavigateBack time.Duration
	Ping         time.Duration
	Diagnose     time.Duration
}

// Observer receives the duration and outcome of each call
type Observer interface {
	ObserveAgentCall(action string, d time.Duration, err error)
}

// Client issues typed requests over a Transport. Every call gets its own
// deadline; an expired deadline is reported as a Timeout error and any other
// delivery failure as a Transport error.
type Client struct {
	transport Transport
	timeouts  Timeouts
	observer  Observer
	logger    logger.Logger
}

// NewClient creates a protocol client
func NewClient(t Transport, timeouts Timeouts, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{transport: t, timeouts: timeouts, logger: log}
}

// SetObserver attaches a call observer
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// call sends one request bounded by timeout and classifies failures
func (c *Client) call(ctx context.Context, action Action, params Params, timeout time.Duration) (Response, error) {
	req := Request{ID: uuid.NewString(), Action: action, Params: params}
	op := string(action)

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.transport.Send(callCtx, req)
	elapsed := time.Since(start)

	if err == nil && !resp.Success {
		err = resp.Err(op)
	}
	if err != nil {
		err = classify(ctx, callCtx, op, err)
	}

	if c.observer != nil {
		c.observer.ObserveAgentCall(op, elapsed, err)
	}
	c.logger.DebugWithFields("Agent call finished", map[string]interface{}{
		"action":     op,
		"request_id": req.ID,
		"elapsed":    elapsed,
		"ok":         err == nil,
	})
	return resp, err
}

// classify maps a raw call failure onto the error taxonomy
func classify(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		// the run itself was cancelled; keep the context error visible
		return errs.Wrap(errs.ErrorTypeTransport, op, parent.Err())
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
		return errs.Timeout(op, err)
	}
	return errs.Transport(op, err)
}

// LocateAndOpenInvoice finds the invoice row for amount, opens it and reads
// its tracking ids in one request
func (c *Client) LocateAndOpenInvoice(ctx context.Context, amount string) (*InvoiceResult, error) {
	resp, err := c.call(ctx, ActionLocateAndOpenInvoice, Params{Amount: amount}, c.timeouts.Locate)
	if err != nil {
		return nil, err
	}
	if resp.Invoice == nil {
		return &InvoiceResult{Found: false, Diagnostics: resp.Diagnostics}, nil
	}
	return resp.Invoice, nil
}

// ClickTrackingEntry clicks the element for a tracking id; false means not found
func (c *Client) ClickTrackingEntry(ctx context.Context, trackingID string) (bool, error) {
	resp, err := c.call(ctx, ActionClickTrackingEntry, Params{TrackingID: trackingID}, c.timeouts.Click)
	if err != nil {
		return false, err
	}
	return resp.Clicked, nil
}

// ScrapeShipmentFields extracts the field map of the current shipment view
func (c *Client) ScrapeShipmentFields(ctx context.Context) (map[string]string, error) {
	resp, err := c.call(ctx, ActionScrapeShipmentFields, Params{}, c.timeouts.Scrape)
	if err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// WaitForViewReady waits until the URL contains fragment or marker is
// present. The call deadline is the wait timeout plus a margin for delivery.
func (c *Client) WaitForViewReady(ctx context.Context, fragment, marker string, timeout time.Duration) (bool, error) {
	resp, err := c.call(ctx, ActionWaitForViewReady, Params{URLFragment: fragment, Marker: marker, Timeout: timeout}, timeout+c.timeouts.Ping)
	if err != nil {
		return false, err
	}
	return resp.Ready, nil
}

// NavigateBack performs a history back navigation
func (c *Client) NavigateBack(ctx context.Context) error {
	_, err := c.call(ctx, ActionNavigateBack, Params{}, c.timeouts.NavigateBack)
	return err
}

// Ping reports whether the agent is installed in the current page
func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, ActionPing, Params{}, c.timeouts.Ping)
	if err != nil {
		return false, err
	}
	return resp.Alive, nil
}

// Diagnose captures the visible state of the current page
func (c *Client) Diagnose(ctx context.Context) (*Diagnostics, error) {
	resp, err := c.call(ctx, ActionDiagnose, Params{}, c.timeouts.Diagnose)
	if err != nil {
		return nil, err
	}
	return resp.Diagnostics, nil
}
