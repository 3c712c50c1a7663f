// Package protocol defines the request/response contract between the driver
// and the page agent, and a typed client that applies per-call timeouts.
package protocol

import (
	"context"
	"encoding/json"
	"time"

	errs "invoicescraper/pkg/errors"
)

// Action names a page agent operation
type Action string

const (
	ActionLocateAndOpenInvoice Action = "locate-and-open-invoice"
	ActionClickTrackingEntry   Action = "click-tracking-entry"
	ActionScrapeShipmentFields Action = "scrape-shipment-fields"
	ActionWaitForViewReady     Action = "wait-for-view-ready"
	ActionNavigateBack         Action = "navigate-back"
	ActionPing                 Action = "ping"
	ActionDiagnose             Action = "diagnose"
)

// Params carries the arguments of a request. Only the fields relevant to
// the action are set.
type Params struct {
	Amount      string        `json:"amount,omitempty"`
	TrackingID  string        `json:"tracking_id,omitempty"`
	URLFragment string        `json:"url_fragment,omitempty"`
	Marker      string        `json:"marker,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// Request is one driver-to-agent call
type Request struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
	Params Params `json:"params"`
}

// Diagnostics is the page state captured when a lookup fails
type Diagnostics struct {
	URL              string   `json:"url"`
	Markers          []string `json:"markers,omitempty"`
	VisibleAmounts   []string `json:"visible_amounts,omitempty"`
	IdentifierLike   []string `json:"identifier_like,omitempty"`
	MatchedColumn    string   `json:"matched_column,omitempty"`
	ScrollAttempts   int      `json:"scroll_attempts,omitempty"`
	ViewReadyTimeout bool     `json:"view_ready_timeout,omitempty"`
}

// InvoiceResult is the payload of locate-and-open-invoice
type InvoiceResult struct {
	Found         bool         `json:"found"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	TrackingIDs   []string     `json:"tracking_ids,omitempty"`
	DetailURL     string       `json:"detail_url,omitempty"`
	Strategy      string       `json:"strategy,omitempty"`
	Diagnostics   *Diagnostics `json:"diagnostics,omitempty"`
}

// Response is the agent's answer to a Request
type Response struct {
	ID          string            `json:"id"`
	Success     bool              `json:"success"`
	ErrorType   errs.ErrorType    `json:"error_type,omitempty"`
	Error       string            `json:"error,omitempty"`
	Invoice     *InvoiceResult    `json:"invoice,omitempty"`
	Clicked     bool              `json:"clicked,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Ready       bool              `json:"ready,omitempty"`
	Alive       bool              `json:"alive,omitempty"`
	Diagnostics *Diagnostics      `json:"diagnostics,omitempty"`
}

// Failure builds an unsuccessful response from an error
func Failure(id string, err error) Response {
	return Response{
		ID:        id,
		Success:   false,
		ErrorType: errs.TypeOf(err),
		Error:     err.Error(),
	}
}

// Err converts an unsuccessful response back into a typed error
func (r Response) Err(op string) error {
	if r.Success {
		return nil
	}
	t := r.ErrorType
	if t == "" || t == errs.ErrorTypeUnknown {
		t = errs.ErrorTypeTransport
	}
	return errs.New(t, op, r.Error)
}

// Transport delivers a request to the page agent and returns its response
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, req Request) (Response, error)

// Send calls f
func (f TransportFunc) Send(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Encode renders a request as JSON for logging and event payloads
func (r Request) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return string(r.Action)
	}
	return string(b)
}
