package driver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"invoicescraper/pkg/config"
	"invoicescraper/pkg/export"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
	"invoicescraper/pkg/protocol"
	"invoicescraper/pkg/ratelimit"
	"invoicescraper/pkg/storage"
)

const (
	listURL        = "https://portal.test/billing/invoices"
	invoiceFrag    = "/invoices/"
	shipmentFrag   = "/shipments/"
	inv001URL      = "https://portal.test/billing/invoices/INV001"
	invoiceMarker  = "[data-view='invoice-detail']"
	shipmentMarker = "[data-view='shipment-detail']"
	trackingFirst  = "111111111111"
	trackingSecond = "222222222222"
)

type fakeInvoice struct {
	number    string
	detailURL string
	tracking  []string
	fields    map[string]map[string]string
}

// fakeAgent scripts agent and page behavior per amount and tracking id
type fakeAgent struct {
	mu          sync.Mutex
	invoices    map[string]fakeInvoice
	locateErrs  map[string][]error
	clickFail   map[string]bool
	clickStays  map[string]bool
	scrapeEmpty map[string]bool
	landFail    bool
	navErr      error
	panicScrape bool

	onLocate func(amount string)

	installed   bool
	installs    int
	current     fakeInvoice
	currentID   string
	navigations []string
	calls       []string

	// views is the page history as view names: list, invoice or shipment
	views []string
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		invoices:    map[string]fakeInvoice{},
		locateErrs:  map[string][]error{},
		clickFail:   map[string]bool{},
		clickStays:  map[string]bool{},
		scrapeEmpty: map[string]bool{},
	}
}

func (f *fakeAgent) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAgent) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	if f.navErr != nil {
		return f.navErr
	}
	f.installed = false
	if url == listURL {
		f.views = append(f.views, "list")
	} else {
		f.views = append(f.views, "invoice")
	}
	return nil
}

func (f *fakeAgent) view() string {
	if len(f.views) == 0 {
		return ""
	}
	return f.views[len(f.views)-1]
}

func (f *fakeAgent) Install(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs++
	f.installed = true
	return nil
}

func (f *fakeAgent) Ping(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed, nil
}

func (f *fakeAgent) LocateAndOpenInvoice(ctx context.Context, amount string) (*protocol.InvoiceResult, error) {
	f.record("locate:" + amount)
	if f.onLocate != nil {
		f.onLocate(amount)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.locateErrs[amount]; len(queue) > 0 {
		f.locateErrs[amount] = queue[1:]
		return nil, queue[0]
	}
	inv, ok := f.invoices[amount]
	// the invoice rows only exist on the list
	if !ok || f.view() != "list" {
		return &protocol.InvoiceResult{Found: false, Diagnostics: &protocol.Diagnostics{URL: listURL, VisibleAmounts: []string{"99.00"}}}, nil
	}
	f.current = inv
	f.views = append(f.views, "invoice")
	return &protocol.InvoiceResult{
		Found:         true,
		InvoiceNumber: inv.number,
		TrackingIDs:   append([]string(nil), inv.tracking...),
		DetailURL:     inv.detailURL,
		Strategy:      "table-scan",
	}, nil
}

func (f *fakeAgent) ClickTrackingEntry(ctx context.Context, trackingID string) (bool, error) {
	f.record("click:" + trackingID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickFail[trackingID] {
		return false, nil
	}
	f.currentID = trackingID
	if !f.clickStays[trackingID] {
		f.views = append(f.views, "shipment")
	}
	return true, nil
}

func (f *fakeAgent) ScrapeShipmentFields(ctx context.Context) (map[string]string, error) {
	f.record("scrape")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicScrape {
		panic("page vanished")
	}
	if f.scrapeEmpty[f.currentID] {
		return map[string]string{}, nil
	}
	out := map[string]string{}
	for k, v := range f.current.fields[f.currentID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAgent) WaitForViewReady(ctx context.Context, fragment, marker string, timeout time.Duration) (bool, error) {
	f.record("wait:" + fragment)
	f.mu.Lock()
	defer f.mu.Unlock()
	view := f.view()
	switch {
	case marker == invoiceMarker && view == "invoice":
		return true, nil
	case marker == shipmentMarker && view == "shipment":
		return true, nil
	case fragment == invoiceFrag && view == "invoice":
		return true, nil
	case fragment == shipmentFrag && view == "shipment":
		return true, nil
	}
	return false, nil
}

// NavigateBack pops the view history. landFail leaves the page where it is.
func (f *fakeAgent) NavigateBack(ctx context.Context) error {
	f.record("back")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.landFail && len(f.views) > 1 {
		f.views = f.views[:len(f.views)-1]
	}
	return nil
}

func (f *fakeAgent) Diagnose(ctx context.Context) (*protocol.Diagnostics, error) {
	return &protocol.Diagnostics{URL: listURL}, nil
}

func (f *fakeAgent) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func shipmentFields(id string) map[string]string {
	return map[string]string{
		"Tracking Number": id,
		"Ship Date":       "2024-03-0" + id[:1],
		"Service":         "Ground",
		"Weight":          "12 lbs",
		"Total Charges":   fmt.Sprintf("$%s.00", id[:2]),
	}
}

// scenarioAgent returns the two-amount portal: INV001 with two shipments for
// 452.67 and nothing for 1431.43
func scenarioAgent() *fakeAgent {
	f := newFakeAgent()
	f.invoices["452.67"] = fakeInvoice{
		number:    "INV001",
		detailURL: inv001URL,
		tracking:  []string{trackingFirst, trackingSecond},
		fields: map[string]map[string]string{
			trackingFirst:  shipmentFields(trackingFirst),
			trackingSecond: shipmentFields(trackingSecond),
		},
	}
	return f
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Portal.ListURL = listURL
	cfg.Portal.InvoiceFragment = invoiceFrag
	cfg.Portal.ShipmentFragment = shipmentFrag
	cfg.Portal.InvoiceMarker = invoiceMarker
	cfg.Portal.ShipmentMarker = shipmentMarker
	cfg.Timing.NavigateTimeout = time.Second
	cfg.Timing.ViewReadyTimeout = 50 * time.Millisecond
	cfg.Timing.LandingTimeout = 10 * time.Millisecond
	cfg.Export.OutputDir = t.TempDir()
	return cfg
}

type testRig struct {
	driver *Driver
	agent  *fakeAgent
	store  *storage.Manager
	log    *logger.TestLogger
	cfg    *config.Config
}

func newTestRig(t *testing.T, agent *fakeAgent) *testRig {
	t.Helper()
	cfg := testConfig(t)
	store, err := storage.NewManager(cfg.Export.OutputDir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	tl := logger.NewTestLogger()
	d := New(agent, agent, export.NewWorkbook(cfg.Export, tl), store, cfg, tl)
	d.SetPacer(ratelimit.NoPause{})
	return &testRig{driver: d, agent: agent, store: store, log: tl, cfg: cfg}
}

type recorder struct {
	mu          sync.Mutex
	amounts     map[string]int
	shipments   map[string]int
	transitions []string
	runs        []string
}

func newRecorder() *recorder {
	return &recorder{amounts: map[string]int{}, shipments: map[string]int{}}
}

func (r *recorder) RecordAmount(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amounts[outcome]++
}

func (r *recorder) RecordShipment(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shipments[outcome]++
}

func (r *recorder) RecordStateTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+">"+to)
}

func (r *recorder) RecordRun(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, state)
}

type fakeJournal struct {
	resumed  []models.InvoiceRecord
	recorded []models.InvoiceRecord
	finished bool
}

func (j *fakeJournal) Resumed() []models.InvoiceRecord {
	return j.resumed
}

func (j *fakeJournal) Record(rec models.InvoiceRecord) error {
	j.recorded = append(j.recorded, rec)
	return nil
}

func (j *fakeJournal) Finish() error {
	j.finished = true
	return nil
}

type failingSink struct{ err error }

func (s failingSink) Export(ctx context.Context, r *models.ExtractionResult, runID string) (*export.Artifact, error) {
	return nil, s.err
}

type storeFunc func(name string, data []byte) (string, error)

func (f storeFunc) SaveArtifact(name string, data []byte) (string, error) { return f(name, data) }
