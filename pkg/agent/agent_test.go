package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

func newTestAgent(t *testing.T, page *fakePage) (*Agent, *strategyRecorder) {
	t.Helper()
	a, err := New(page, testConfig(), logger.NewNopLogger())
	require.NoError(t, err)
	rec := &strategyRecorder{}
	a.SetObserver(rec)
	return a, rec
}

func openList(t *testing.T, page *fakePage) {
	t.Helper()
	require.NoError(t, page.Navigate(context.Background(), listURL))
}

func TestInstallAndPing(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, _ := newTestAgent(t, page)
	ctx := context.Background()

	alive, err := a.Ping(ctx)
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, a.Install(ctx))
	alive, err = a.Ping(ctx)
	require.NoError(t, err)
	assert.True(t, alive)

	// a full navigation drops the agent
	require.NoError(t, a.Navigate(ctx, listURL))
	alive, err = a.Ping(ctx)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestLocateAndOpenInvoiceTableScan(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, rec := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "INV001", inv.InvoiceNumber)
	assert.Equal(t, []string{"111111111111", "222222222222"}, inv.TrackingIDs)
	assert.Equal(t, inv001URL, inv.DetailURL)
	assert.Equal(t, "table-scan", inv.Strategy)
	assert.Equal(t, []string{"INV001"}, page.Clicks())
	assert.Contains(t, rec.Hits(), "locate-invoice-row/table-scan")
	assert.Contains(t, rec.Hits(), "collect-tracking-ids/labeled-cells")
}

func TestLocateMatchesAnyAmountColumn(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "$1,431.43")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "INV002", inv.InvoiceNumber)
	assert.Empty(t, inv.TrackingIDs)
	require.NotNil(t, inv.Diagnostics)
	assert.Equal(t, "Balance", inv.Diagnostics.MatchedColumn)
}

func TestLocateNotFoundReportsDiagnostics(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "999.99")
	require.NoError(t, err)
	assert.False(t, inv.Found)
	require.NotNil(t, inv.Diagnostics)
	assert.Equal(t, listURL, inv.Diagnostics.URL)
	assert.Contains(t, inv.Diagnostics.VisibleAmounts, "$452.67")
	assert.Contains(t, inv.Diagnostics.IdentifierLike, "INV001")
	assert.Contains(t, inv.Diagnostics.Markers, "table")
	assert.Empty(t, page.Clicks())
}

func TestLocateByDataAttribute(t *testing.T) {
	routes := portalRoutes()
	routes[listURL] = `<html><body>
<div class="list">
  <div data-row-type="invoice" data-href="https://portal.test/invoices/INV002">
    <span data-field="invoiceNumber">INV003</span><span data-field="amount">$75.25</span>
  </div>
</div></body></html>`
	page := newFakePage(routes)
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "75.25")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "data-attribute", inv.Strategy)
	assert.Equal(t, "INV003", inv.InvoiceNumber)
	assert.Equal(t, "amount", inv.Diagnostics.MatchedColumn)
	assert.Equal(t, inv002URL, inv.DetailURL)
}

func TestLocateInComponentGrid(t *testing.T) {
	routes := portalRoutes()
	routes[listURL] = `<html><body>
<div role="grid">
  <div role="row"><span role="columnheader">Invoice</span><span role="columnheader">Amount Due</span></div>
  <div role="row" data-href="https://portal.test/invoices/INV001"><span role="gridcell">INV001</span><span role="gridcell">$452.67</span></div>
</div></body></html>`
	page := newFakePage(routes)
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "component-scoped", inv.Strategy)
	assert.Equal(t, "Amount Due", inv.Diagnostics.MatchedColumn)
	assert.Len(t, inv.TrackingIDs, 2)
}

func TestLocateScrollsVirtualContainer(t *testing.T) {
	first := `<html><body><div data-virtualized><table>
<thead><tr><th>Invoice Number</th><th>Amount</th></tr></thead>
<tbody><tr><td><a href="https://portal.test/invoices/INV002">INV002</a></td><td>$10.00</td></tr></tbody>
</table></div></body></html>`
	second := `<html><body><div data-virtualized><table>
<thead><tr><th>Invoice Number</th><th>Amount</th></tr></thead>
<tbody><tr><td><a href="https://portal.test/invoices/INV001">INV001</a></td><td>$452.67</td></tr></tbody>
</table></div></body></html>`
	routes := portalRoutes()
	routes[listURL] = first
	page := newFakePage(routes)
	page.scrolls = []string{second}
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "INV001", inv.InvoiceNumber)
	require.NotNil(t, inv.Diagnostics)
	assert.Equal(t, 1, inv.Diagnostics.ScrollAttempts)
}

func TestLocateFullTextFallback(t *testing.T) {
	routes := portalRoutes()
	routes[listURL] = `<html><body><ul class="cards">
  <li data-href="https://portal.test/invoices/INV001"><span>INV009</span><span>$88.10</span></li>
</ul></body></html>`
	page := newFakePage(routes)
	openList(t, page)
	a, rec := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "88.10")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "full-text", inv.Strategy)
	assert.Equal(t, "INV009", inv.InvoiceNumber)
	assert.Contains(t, rec.Hits(), "locate-invoice-row/full-text")
}

func TestLocateProceedsWhenViewNeverReady(t *testing.T) {
	routes := portalRoutes()
	routes[listURL] = `<html><body><table>
<thead><tr><th>Invoice Number</th><th>Amount</th></tr></thead>
<tbody><tr><td><button>INV001</button></td><td>$452.67</td></tr></tbody>
</table></body></html>`
	page := newFakePage(routes)
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Empty(t, inv.TrackingIDs)
	require.NotNil(t, inv.Diagnostics)
	assert.True(t, inv.Diagnostics.ViewReadyTimeout)
}

func TestLocateTransportFailure(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	page.evalErr = errors.New("Execution context was destroyed")
	a, _ := newTestAgent(t, page)

	_, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
}

func TestWaitForViewReady(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, _ := newTestAgent(t, page)
	ctx := context.Background()

	ready, err := a.WaitForViewReady(ctx, "/shipments/", "", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = a.WaitForViewReady(ctx, "", "#invoices", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = a.WaitForViewReady(ctx, "portal.test/invoices", "", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestWaitForViewReadyCancelled(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	a, _ := newTestAgent(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.WaitForViewReady(ctx, "/nowhere/", "", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClickTrackingEntry(t *testing.T) {
	page := newFakePage(portalRoutes())
	require.NoError(t, page.Navigate(context.Background(), inv001URL))
	a, rec := newTestAgent(t, page)
	ctx := context.Background()

	clicked, err := a.ClickTrackingEntry(ctx, "222222222222")
	require.NoError(t, err)
	assert.True(t, clicked)
	url, _ := page.URL(ctx)
	assert.Equal(t, shipment2URL, url)
	assert.Contains(t, rec.Hits(), "click-tracking-entry/labeled-cell")

	require.NoError(t, a.NavigateBack(ctx))
	clicked, err = a.ClickTrackingEntry(ctx, "333333333333")
	require.NoError(t, err)
	assert.False(t, clicked)
}

func TestClickTrackingEntryVanished(t *testing.T) {
	page := newFakePage(portalRoutes())
	require.NoError(t, page.Navigate(context.Background(), inv001URL))
	page.clickErr = errors.New("element is detached")
	a, _ := newTestAgent(t, page)

	clicked, err := a.ClickTrackingEntry(context.Background(), "111111111111")
	require.NoError(t, err)
	assert.False(t, clicked)
}

func TestClickTrackingEntryPageCrashIsTransport(t *testing.T) {
	page := newFakePage(portalRoutes())
	require.NoError(t, page.Navigate(context.Background(), inv001URL))
	page.clickErr = errors.New("Target closed")
	page.crashOnClick = true
	a, _ := newTestAgent(t, page)

	clicked, err := a.ClickTrackingEntry(context.Background(), "111111111111")
	require.Error(t, err)
	assert.False(t, clicked)
	assert.True(t, errs.IsTransport(err))
}

func TestLocateToleratesContextLossAfterClick(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	page.pingErrsAfter = map[string]int{inv001URL: 2}
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	assert.Equal(t, "INV001", inv.InvoiceNumber)
	assert.Equal(t, []string{"111111111111", "222222222222"}, inv.TrackingIDs)
}

func TestClickTrackingEntryToleratesContextLoss(t *testing.T) {
	page := newFakePage(portalRoutes())
	openList(t, page)
	page.pingErrsAfter = map[string]int{inv001URL: 1}
	a, _ := newTestAgent(t, page)
	ctx := context.Background()

	// leave the list by a client-side route so the next ping fails once
	require.NoError(t, page.Click(ctx, "a[href='"+inv001URL+"']"))
	clicked, err := a.ClickTrackingEntry(ctx, "111111111111")
	require.NoError(t, err)
	assert.True(t, clicked)
	url, _ := page.URL(ctx)
	assert.Equal(t, shipment1URL, url)
}

func TestLocatePrefersAmountHeaders(t *testing.T) {
	routes := portalRoutes()
	routes[listURL] = `<html><body><table>
<thead><tr><th>Invoice Number</th><th>Credit</th><th>Balance Due</th></tr></thead>
<tbody><tr><td><a href="https://portal.test/invoices/INV001">INV001</a></td><td>$452.67</td><td>$452.67</td></tr></tbody>
</table></body></html>`
	page := newFakePage(routes)
	openList(t, page)
	a, _ := newTestAgent(t, page)

	inv, err := a.LocateAndOpenInvoice(context.Background(), "452.67")
	require.NoError(t, err)
	require.True(t, inv.Found)
	require.NotNil(t, inv.Diagnostics)
	assert.Equal(t, "Balance Due", inv.Diagnostics.MatchedColumn)
}

func TestDiagnose(t *testing.T) {
	page := newFakePage(portalRoutes())
	require.NoError(t, page.Navigate(context.Background(), inv001URL))
	a, _ := newTestAgent(t, page)

	d, err := a.Diagnose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inv001URL, d.URL)
	assert.Contains(t, d.Markers, "[data-view='invoice-detail']")
	assert.Contains(t, d.IdentifierLike, "111111111111")
	assert.Contains(t, d.VisibleAmounts, "$12.00")
}
