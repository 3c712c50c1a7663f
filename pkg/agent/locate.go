package agent

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"invoicescraper/pkg/amount"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/protocol"
	"invoicescraper/pkg/retry"
)

// gridRow is one data row with its cells and the header of each cell
type gridRow struct {
	row     *goquery.Selection
	headers []string
	cells   []*goquery.Selection
}

// rowMatch is the row found for a target amount
type rowMatch struct {
	ClickID       string
	InvoiceNumber string
	Column        string
}

const operationLocate = "locate-invoice-row"

func (a *Agent) rowCascade() Cascade[rowMatch] {
	return Cascade[rowMatch]{
		Operation: operationLocate,
		Strategies: []Strategy[rowMatch]{
			{Name: "data-attribute", Find: a.findByDataAttribute},
			{Name: "component-scoped", Find: a.findInComponent},
			{Name: "table-scan", Find: a.findInTables},
		},
	}
}

func (a *Agent) fullTextCascade() Cascade[rowMatch] {
	return Cascade[rowMatch]{
		Operation:  operationLocate,
		Strategies: []Strategy[rowMatch]{{Name: "full-text", Find: a.findByFullText}},
	}
}

// findByDataAttribute scans rows marked by a known row selector whose cells
// are named by the field attribute
func (a *Agent) findByDataAttribute(s *Snapshot, target string) (rowMatch, bool) {
	var rows []gridRow
	for _, sel := range a.cfg.RowSelectors {
		s.Doc.Find(sel).Each(func(_ int, r *goquery.Selection) {
			if !isVisible(r) {
				return
			}
			gr := gridRow{row: r}
			r.Find("[" + a.cfg.FieldAttribute + "]").Each(func(_ int, c *goquery.Selection) {
				name, _ := c.Attr(a.cfg.FieldAttribute)
				gr.headers = append(gr.headers, name)
				gr.cells = append(gr.cells, c)
			})
			rows = append(rows, gr)
		})
	}
	return a.matchRows(rows, target)
}

// findInComponent scans the rows of a known grid widget
func (a *Agent) findInComponent(s *Snapshot, target string) (rowMatch, bool) {
	c := a.cfg.Component
	if c.Container == "" || c.Row == "" || c.Cell == "" {
		return rowMatch{}, false
	}
	var rows []gridRow
	s.Doc.Find(c.Container).Each(func(_ int, container *goquery.Selection) {
		var headers []string
		container.Find("[role='columnheader']").Each(func(_ int, h *goquery.Selection) {
			headers = append(headers, textOf(h))
		})
		container.Find(c.Row).Each(func(_ int, r *goquery.Selection) {
			cells := r.Find(c.Cell)
			if cells.Length() == 0 || !isVisible(r) {
				return
			}
			gr := gridRow{row: r}
			cells.Each(func(i int, cell *goquery.Selection) {
				gr.cells = append(gr.cells, cell)
				gr.headers = append(gr.headers, at(headers, i))
			})
			rows = append(rows, gr)
		})
	})
	return a.matchRows(rows, target)
}

// findInTables scans every plain table on the page
func (a *Agent) findInTables(s *Snapshot, target string) (rowMatch, bool) {
	var rows []gridRow
	s.Doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		headers := headerTexts(table)
		table.Find("tr").Each(func(_ int, r *goquery.Selection) {
			cells := r.Find("td")
			if cells.Length() == 0 || !isVisible(r) {
				return
			}
			gr := gridRow{row: r}
			cells.Each(func(i int, cell *goquery.Selection) {
				gr.cells = append(gr.cells, cell)
				gr.headers = append(gr.headers, at(headers, i))
			})
			rows = append(rows, gr)
		})
	})
	return a.matchRows(rows, target)
}

// findByFullText looks at every visible leaf on the page and climbs from
// a matching amount to its enclosing row
func (a *Agent) findByFullText(s *Snapshot, target string) (rowMatch, bool) {
	for _, leaf := range leaves(s.Doc.Find("body")) {
		t := textOf(leaf)
		if !amount.Looks(t) || !amount.Equal(t, target) {
			continue
		}
		row := leaf.Closest("tr, [role='row'], li, [data-href], a, button")
		if row.Length() == 0 {
			row = leaf.Parent()
		}
		var number string
		for _, l := range leaves(row) {
			if a.invoiceNumber.MatchString(textOf(l)) {
				number = textOf(l)
				break
			}
		}
		id, ok := a.rowClickTarget(row, number)
		if !ok {
			continue
		}
		return rowMatch{ClickID: id, InvoiceNumber: number}, true
	}
	return rowMatch{}, false
}

// matchRows returns the first row with an amount-like cell equal to target.
// Any amount column may match; columns headed like an amount are tried first
// and the matched column is reported.
func (a *Agent) matchRows(rows []gridRow, target string) (rowMatch, bool) {
	for _, r := range rows {
		for _, i := range a.amountColumnsFirst(r.headers, len(r.cells)) {
			t := textOf(r.cells[i])
			if !amount.Looks(t) || !amount.Equal(t, target) {
				continue
			}
			number := a.rowInvoiceNumber(r)
			id, ok := a.rowClickTarget(r.row, number)
			if !ok {
				continue
			}
			return rowMatch{ClickID: id, InvoiceNumber: number, Column: r.headers[i]}, true
		}
	}
	return rowMatch{}, false
}

// rowInvoiceNumber prefers a cell shaped like an invoice number, then a
// cell under an invoice header
func (a *Agent) rowInvoiceNumber(r gridRow) string {
	for _, c := range r.cells {
		if t := textOf(c); a.invoiceNumber.MatchString(t) {
			return t
		}
	}
	for _, kw := range a.cfg.InvoiceHeaders {
		for i, h := range r.headers {
			if !containsFold(h, kw) || containsFold(h, "date") {
				continue
			}
			if t := textOf(r.cells[i]); t != "" && !amount.Looks(t) {
				return t
			}
		}
	}
	return ""
}

// rowClickTarget prefers the invoice number link, then any clickable in the
// row, then the row itself
func (a *Agent) rowClickTarget(row *goquery.Selection, number string) (string, bool) {
	if number != "" {
		var id string
		row.Find(clickableSelector).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if textOf(c) == number {
				id = iaID(c)
				return false
			}
			return true
		})
		if id != "" {
			return id, true
		}
	}
	return clickTarget(row)
}

// amountColumnsFirst orders cell indexes so that columns whose header
// names an amount come before the rest
func (a *Agent) amountColumnsFirst(headers []string, n int) []int {
	order := make([]int, 0, n)
	var rest []int
	for i := 0; i < n; i++ {
		if a.isAmountHeader(at(headers, i)) {
			order = append(order, i)
		} else {
			rest = append(rest, i)
		}
	}
	return append(order, rest...)
}

func (a *Agent) isAmountHeader(h string) bool {
	for _, kw := range a.cfg.AmountHeaders {
		if containsFold(h, kw) {
			return true
		}
	}
	return false
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// hasVirtualContainer reports whether the page renders rows lazily
func (a *Agent) hasVirtualContainer(s *Snapshot) bool {
	if len(a.cfg.VirtualContainers) == 0 {
		return false
	}
	return s.Doc.Find(strings.Join(a.cfg.VirtualContainers, ", ")).Length() > 0
}

// tableSelector matches any table-like content the row strategies read
func (a *Agent) tableSelector() string {
	parts := []string{"table tr"}
	parts = append(parts, a.cfg.RowSelectors...)
	if a.cfg.Component.Row != "" {
		parts = append(parts, a.cfg.Component.Row)
	}
	return strings.Join(parts, ", ")
}

// LocateAndOpenInvoice finds the row for target, clicks it, waits for the
// detail view and collects the tracking ids shown there. A missing invoice
// is reported with Found false and diagnostics, not as an error.
func (a *Agent) LocateAndOpenInvoice(ctx context.Context, target string) (*protocol.InvoiceResult, error) {
	target = amount.Normalize(target)
	log := a.logger.WithField("amount", target)

	if ok, err := a.waitFor(ctx, a.tableSelector(), a.timing.TableWait); err != nil {
		return nil, err
	} else if !ok {
		log.Debug("No table content before wait expired; scanning anyway")
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	match, strategy, found := runCascade(a, a.rows, snap, target)

	scrolls := 0
	if !found && a.hasVirtualContainer(snap) {
		for scrolls < a.cfg.MaxScrollAttempts {
			var moved bool
			arg := map[string]interface{}{"selectors": a.cfg.VirtualContainers, "step": a.cfg.ScrollStep}
			if err := a.evaluate(ctx, "scroll", scriptScroll, arg, &moved); err != nil {
				return nil, err
			}
			scrolls++
			if !moved {
				break
			}
			if err := retry.Wait(ctx, a.timing.PollInterval); err != nil {
				return nil, errs.Transport("scroll", err)
			}
			if snap, err = a.snapshot(ctx); err != nil {
				return nil, err
			}
			if match, strategy, found = runCascade(a, a.rows, snap, target); found {
				break
			}
		}
	}

	if !found {
		match, strategy, found = runCascade(a, a.fullText, snap, target)
	}

	if !found {
		diag := a.diagnostics(snap)
		diag.ScrollAttempts = scrolls
		log.WarnWithFields("Invoice row not found", map[string]interface{}{
			"url":             diag.URL,
			"visible_amounts": diag.VisibleAmounts,
		})
		return &protocol.InvoiceResult{Found: false, Diagnostics: diag}, nil
	}

	if err := a.click(ctx, "open-invoice", match.ClickID); err != nil {
		return nil, err
	}

	ready, err := a.WaitForViewReady(ctx, a.portal.InvoiceFragment, a.portal.InvoiceMarker, a.timing.ViewReadyTimeout)
	if err != nil {
		return nil, err
	}
	if !ready {
		log.Warn("Invoice view not confirmed ready; extracting anyway")
	}

	ids, detail, err := a.collectTrackingIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &protocol.InvoiceResult{
		Found:         true,
		InvoiceNumber: match.InvoiceNumber,
		TrackingIDs:   ids,
		DetailURL:     detail.URL,
		Strategy:      strategy,
	}
	if !ready || match.Column != "" || scrolls > 0 {
		result.Diagnostics = &protocol.Diagnostics{
			URL:              detail.URL,
			MatchedColumn:    match.Column,
			ScrollAttempts:   scrolls,
			ViewReadyTimeout: !ready,
		}
	}
	log.InfoWithFields("Invoice opened", map[string]interface{}{
		"invoice_number": match.InvoiceNumber,
		"strategy":       strategy,
		"column":         match.Column,
		"tracking_ids":   len(ids),
	})
	return result, nil
}
