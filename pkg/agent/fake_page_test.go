package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"invoicescraper/pkg/config"
)

// fakePage is an in-memory browser tab. Routes map URLs to HTML; clicking
// an element with href or data-href follows the route as a client-side
// navigation. Scripts are recognized by identity and emulated with goquery.
type fakePage struct {
	mu sync.Mutex

	routes   map[string]string
	expanded map[string]string
	scrolls  []string

	url       string
	doc       *goquery.Document
	history   []string
	installed bool
	seq       int
	clicks    []string
	evalErr   error
	clickErr  error

	// pingErrsAfter[url] pings fail after a click routes to url, as while a
	// client-side route swaps the document
	pingErrsAfter map[string]int
	pingErrs      int

	// crashOnClick makes a failed click take the page down with it
	crashOnClick bool
}

func newFakePage(routes map[string]string) *fakePage {
	return &fakePage{routes: routes, expanded: map[string]string{}}
}

func (p *fakePage) load(url string) error {
	html, ok := p.routes[url]
	if !ok {
		return fmt.Errorf("no route for %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	p.url = url
	p.doc = doc
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(url); err != nil {
		return err
	}
	p.history = append(p.history, url)
	p.installed = false
	return nil
}

func (p *fakePage) WaitLoad(context.Context) error { return nil }

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", errors.New("no document")
	}
	return p.doc.Html()
}

func (p *fakePage) Evaluate(_ context.Context, script string, arg interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.evalErr != nil {
		return nil, p.evalErr
	}

	var out interface{}
	switch script {
	case scriptBootstrap:
		p.installed = true
		out = true
	case scriptPing:
		if p.pingErrs > 0 {
			p.pingErrs--
			return nil, errors.New("Execution context was destroyed")
		}
		out = p.installed
	case scriptAnnotate:
		if !p.installed {
			return nil, errors.New("TypeError: window.__invoiceAgent is undefined")
		}
		n := 0
		p.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
			n++
			if _, ok := s.Attr("data-ia-id"); !ok {
				p.seq++
				s.SetAttr("data-ia-id", strconv.Itoa(p.seq))
			}
		})
		out = n
	case scriptScroll:
		if len(p.scrolls) == 0 {
			out = false
			break
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.scrolls[0]))
		if err != nil {
			return nil, err
		}
		p.scrolls = p.scrolls[1:]
		p.doc = doc
		out = true
	case scriptExpand:
		html, ok := p.expanded[p.url]
		if !ok {
			out = 0
			break
		}
		delete(p.expanded, p.url)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, err
		}
		p.doc = doc
		out = 1
	case scriptExists:
		out = p.doc != nil && p.doc.Find(arg.(string)).Length() > 0
	case scriptState:
		out = map[string]string{"url": p.url, "readyState": "complete"}
	default:
		return nil, fmt.Errorf("unexpected script %q", script)
	}
	return json.Marshal(out)
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		if p.crashOnClick {
			p.evalErr = errors.New("Target closed")
		}
		return p.clickErr
	}
	el := p.doc.Find(selector)
	if el.Length() == 0 {
		return fmt.Errorf("element not found: %s", selector)
	}
	p.clicks = append(p.clicks, textOf(el))

	link := el.Closest("[href], [data-href]")
	if link.Length() == 0 {
		link = el.Find("[href], [data-href]").First()
	}
	target, ok := link.Attr("href")
	if !ok {
		target, ok = link.Attr("data-href")
	}
	if !ok {
		return nil
	}
	if _, routed := p.routes[target]; !routed {
		return nil
	}
	if err := p.load(target); err != nil {
		return err
	}
	p.history = append(p.history, target)
	p.pingErrs = p.pingErrsAfter[target]
	return nil
}

func (p *fakePage) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}

func (p *fakePage) Back(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) < 2 {
		return errors.New("no history")
	}
	p.history = p.history[:len(p.history)-1]
	return p.load(p.history[len(p.history)-1])
}

func (p *fakePage) Close() error { return nil }

func (p *fakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

type strategyRecorder struct {
	mu   sync.Mutex
	hits []string
}

func (r *strategyRecorder) ObserveStrategy(operation, strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, operation+"/"+strategy)
}

func (r *strategyRecorder) Hits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hits...)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Portal.ListURL = listURL
	cfg.Timing.PollInterval = time.Millisecond
	cfg.Timing.TableWait = 40 * time.Millisecond
	cfg.Timing.ViewReadyTimeout = 40 * time.Millisecond
	cfg.Timing.ExpandWait = time.Millisecond
	return cfg
}

const (
	listURL      = "https://portal.test/invoices"
	inv001URL    = "https://portal.test/invoices/INV001"
	inv002URL    = "https://portal.test/invoices/INV002"
	shipment1URL = "https://portal.test/shipments/111111111111"
	shipment2URL = "https://portal.test/shipments/222222222222"
)

const listHTML = `<html><body>
<h1>Invoices</h1>
<table id="invoices">
  <thead><tr><th>Invoice Number</th><th>Invoice Date</th><th>Original Amount</th><th>Balance</th></tr></thead>
  <tbody>
    <tr><td><a href="https://portal.test/invoices/INV001">INV001</a></td><td>2024-03-01</td><td>$452.67</td><td>$0.00</td></tr>
    <tr><td><a href="https://portal.test/invoices/INV002">INV002</a></td><td>2024-03-08</td><td>$1,500.00</td><td>$1,431.43</td></tr>
  </tbody>
</table>
</body></html>`

const inv001HTML = `<html><body>
<div data-view="invoice-detail">
  <h2>Invoice INV001</h2>
  <table>
    <thead><tr><th>Tracking Number</th><th>Service</th><th>Charges</th></tr></thead>
    <tbody>
      <tr><td><a href="https://portal.test/shipments/111111111111">111111111111</a></td><td>Ground</td><td>$12.00</td></tr>
      <tr><td><a href="https://portal.test/shipments/222222222222">222222222222</a></td><td>Express</td><td>$30.00</td></tr>
    </tbody>
  </table>
</div>
</body></html>`

const inv002HTML = `<html><body>
<div data-view="invoice-detail"><h2>Invoice INV002</h2><p>No shipments on this invoice.</p></div>
</body></html>`

const shipmentHTML = `<html><body>
<div data-view="shipment-detail">
  <div><span data-label="Tracking Number">111111111111</span></div>
  <div class="field"><span class="field-label">Service</span><span>Ground</span></div>
  <dl><dt>Weight</dt><dd>12 lb</dd></dl>
  <section>
    <h3>Charges</h3>
    <div class="field"><span class="field-label">Freight</span><span>$10.00</span></div>
    <div class="field"><span class="field-label">Fuel Surcharge</span><span>$2.00</span></div>
  </section>
  <div>
    <h4>Ship To</h4>
    <div>Jane Doe<br>Acme Corp<br>1 Main St<br>Springfield, IL 62701<br>United States</div>
    <a href="#">View on map</a>
  </div>
</div>
</body></html>`

func portalRoutes() map[string]string {
	return map[string]string{
		listURL:      listHTML,
		inv001URL:    inv001HTML,
		inv002URL:    inv002HTML,
		shipment1URL: shipmentHTML,
		shipment2URL: strings.ReplaceAll(shipmentHTML, "111111111111", "222222222222"),
	}
}
