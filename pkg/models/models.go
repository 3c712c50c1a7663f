package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"invoicescraper/pkg/amount"
)

// Sentinel invoice numbers recorded when no invoice could be read
const (
	NotFound = "NOT FOUND"
	Error    = "ERROR"
)

// ErrResultFrozen is returned when a finished result is mutated
var ErrResultFrozen = errors.New("extraction result is frozen")

// ExtractionRequest is the ordered, deduplicated list of normalized target amounts
type ExtractionRequest struct {
	amounts  []string
	rejected []string
}

// NewExtractionRequest normalizes and deduplicates raw amounts, keeping first
// occurrence order. Inputs without digits are rejected.
func NewExtractionRequest(raw []string) *ExtractionRequest {
	req := &ExtractionRequest{}
	seen := make(map[string]bool)
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		if !amount.HasDigits(r) {
			req.rejected = append(req.rejected, r)
			continue
		}
		n := amount.Normalize(r)
		if seen[n] {
			continue
		}
		seen[n] = true
		req.amounts = append(req.amounts, n)
	}
	return req
}

// Amounts returns a copy of the normalized amounts in request order
func (r *ExtractionRequest) Amounts() []string {
	out := make([]string, len(r.amounts))
	copy(out, r.amounts)
	return out
}

// Rejected returns the raw inputs that were not amounts
func (r *ExtractionRequest) Rejected() []string {
	out := make([]string, len(r.rejected))
	copy(out, r.rejected)
	return out
}

// Len returns the number of amounts
func (r *ExtractionRequest) Len() int {
	return len(r.amounts)
}

// Key returns a stable fingerprint of the request, used to name run journals
func (r *ExtractionRequest) Key() string {
	sum := sha256.Sum256([]byte(strings.Join(r.amounts, "|")))
	return hex.EncodeToString(sum[:8])
}

// ShipmentRecord is an open-schema field map scraped from one shipment page
type ShipmentRecord map[string]string

// Clone returns a copy of the record
func (s ShipmentRecord) Clone() ShipmentRecord {
	out := make(ShipmentRecord, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// InvoiceRecord is the outcome for one target amount
type InvoiceRecord struct {
	Amount        string           `json:"amount"`
	InvoiceNumber string           `json:"invoice_number"`
	Shipments     []ShipmentRecord `json:"shipments"`
}

// Found reports whether an invoice was actually located
func (r InvoiceRecord) Found() bool {
	return r.InvoiceNumber != NotFound && r.InvoiceNumber != Error && r.InvoiceNumber != ""
}

// ExtractionResult maps amount to InvoiceRecord in insertion order
type ExtractionResult struct {
	mu      sync.RWMutex
	order   []string
	records map[string]InvoiceRecord
	frozen  bool
}

// NewExtractionResult creates an empty result
func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{records: make(map[string]InvoiceRecord)}
}

// Put stores the record for its amount. A second Put for the same amount
// replaces the record but keeps its original position.
func (r *ExtractionResult) Put(rec InvoiceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrResultFrozen
	}
	if _, ok := r.records[rec.Amount]; !ok {
		r.order = append(r.order, rec.Amount)
	}
	r.records[rec.Amount] = rec
	return nil
}

// Get returns the record for an amount
func (r *ExtractionResult) Get(amt string) (InvoiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[amt]
	return rec, ok
}

// Records returns all records in insertion order
func (r *ExtractionResult) Records() []InvoiceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]InvoiceRecord, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.records[a])
	}
	return out
}

// Len returns the number of records
func (r *ExtractionResult) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Freeze makes the result read-only
func (r *ExtractionResult) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the result is read-only
func (r *ExtractionResult) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Summary counts outcomes across a result
type Summary struct {
	Amounts   int `json:"amounts"`
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
	Errors    int `json:"errors"`
	Shipments int `json:"shipments"`
}

// Summarize computes outcome counts for the result
func (r *ExtractionResult) Summarize() Summary {
	var s Summary
	for _, rec := range r.Records() {
		s.Amounts++
		switch rec.InvoiceNumber {
		case NotFound:
			s.NotFound++
		case Error:
			s.Errors++
		default:
			s.Found++
		}
		s.Shipments += len(rec.Shipments)
	}
	return s
}
