package agent

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/retry"
)

const (
	operationTracking      = "collect-tracking-ids"
	operationTrackingClick = "click-tracking-entry"
)

func (a *Agent) trackingCascade() Cascade[[]string] {
	return Cascade[[]string]{
		Operation: operationTracking,
		Strategies: []Strategy[[]string]{
			{Name: "labeled-cells", Find: a.idsFromLabeledCells},
			{Name: "table-clickables", Find: a.idsFromTableClickables},
			{Name: "page-clickables", Find: a.idsFromPageClickables},
			{Name: "text-pattern", Find: a.idsFromText},
		},
	}
}

func (a *Agent) trackingClickCascade() Cascade[string] {
	return Cascade[string]{
		Operation: operationTrackingClick,
		Strategies: []Strategy[string]{
			{Name: "labeled-cell", Find: a.clickInLabeledCell},
			{Name: "clickable-exact", Find: a.clickExact},
			{Name: "clickable-contains", Find: a.clickContains},
		},
	}
}

// labeledCells returns the cells that sit under a tracking label: elements
// whose field attribute names tracking, and table or grid cells in a column
// headed by a tracking label
func (a *Agent) labeledCells(s *Snapshot) []*goquery.Selection {
	var cells []*goquery.Selection

	if a.cfg.FieldAttribute != "" {
		s.Doc.Find("[" + a.cfg.FieldAttribute + "]").Each(func(_ int, c *goquery.Selection) {
			name, _ := c.Attr(a.cfg.FieldAttribute)
			for _, label := range a.cfg.TrackingLabels {
				if containsFold(name, label) && isVisible(c) {
					cells = append(cells, c)
					return
				}
			}
		})
	}

	s.Doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		idx := columnIndex(headerTexts(table), a.cfg.TrackingLabels)
		if idx < 0 {
			return
		}
		table.Find("tr").Each(func(_ int, r *goquery.Selection) {
			if cell := r.Find("td").Eq(idx); cell.Length() > 0 && isVisible(cell) {
				cells = append(cells, cell)
			}
		})
	})

	if c := a.cfg.Component; c.Container != "" && c.Row != "" && c.Cell != "" {
		s.Doc.Find(c.Container).Each(func(_ int, container *goquery.Selection) {
			var headers []string
			container.Find("[role='columnheader']").Each(func(_ int, h *goquery.Selection) {
				headers = append(headers, textOf(h))
			})
			idx := columnIndex(headers, a.cfg.TrackingLabels)
			if idx < 0 {
				return
			}
			container.Find(c.Row).Each(func(_ int, r *goquery.Selection) {
				if cell := r.Find(c.Cell).Eq(idx); cell.Length() > 0 && isVisible(cell) {
					cells = append(cells, cell)
				}
			})
		})
	}
	return cells
}

func (a *Agent) idsFromLabeledCells(s *Snapshot, _ string) ([]string, bool) {
	var ids []string
	seen := map[string]bool{}
	for _, c := range a.labeledCells(s) {
		ids = appendUnique(ids, seen, matchingTokens(a.identifier, textOf(c))...)
	}
	return ids, len(ids) > 0
}

func (a *Agent) clickablesMatching(scope *goquery.Selection) []string {
	var ids []string
	seen := map[string]bool{}
	scope.Find(clickableSelector).Each(func(_ int, c *goquery.Selection) {
		if t := textOf(c); isVisible(c) && a.identifier.MatchString(t) {
			ids = appendUnique(ids, seen, t)
		}
	})
	return ids
}

func (a *Agent) idsFromTableClickables(s *Snapshot, _ string) ([]string, bool) {
	ids := a.clickablesMatching(s.Doc.Find("table, [role='grid'], [role='table']"))
	return ids, len(ids) > 0
}

func (a *Agent) idsFromPageClickables(s *Snapshot, _ string) ([]string, bool) {
	ids := a.clickablesMatching(s.Doc.Find("body"))
	return ids, len(ids) > 0
}

// idsFromText takes identifier-shaped tokens anywhere on the page but only
// keeps those that have a clickable element to navigate through
func (a *Agent) idsFromText(s *Snapshot, _ string) ([]string, bool) {
	var ids []string
	seen := map[string]bool{}
	for _, leaf := range leaves(s.Doc.Find("body")) {
		found := matchingTokens(a.identifier, textOf(leaf))
		if len(found) == 0 || leaf.Closest(clickableSelector).Length() == 0 {
			continue
		}
		ids = appendUnique(ids, seen, found...)
	}
	return ids, len(ids) > 0
}

func (a *Agent) clickInLabeledCell(s *Snapshot, id string) (string, bool) {
	for _, c := range a.labeledCells(s) {
		for _, t := range tokens(textOf(c)) {
			if t == id {
				return clickTarget(c)
			}
		}
	}
	return "", false
}

func (a *Agent) clickExact(s *Snapshot, id string) (string, bool) {
	var target string
	s.Doc.Find(clickableSelector).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if isVisible(c) && textOf(c) == id {
			target = iaID(c)
			return false
		}
		return true
	})
	return nonEmpty(target)
}

// clickContains picks the clickable with the shortest text containing id
func (a *Agent) clickContains(s *Snapshot, id string) (string, bool) {
	var target string
	best := -1
	s.Doc.Find(clickableSelector).Each(func(_ int, c *goquery.Selection) {
		t := textOf(c)
		if !isVisible(c) || !strings.Contains(t, id) {
			return
		}
		if best < 0 || len(t) < best {
			best = len(t)
			target = iaID(c)
		}
	})
	return nonEmpty(target)
}

// collectTrackingIDs runs the tracking cascade until it finds ids or the
// table wait expires. An empty list is a valid answer. Snapshot failures are
// retried until the wait expires since the detail route may still be
// replacing the document.
func (a *Agent) collectTrackingIDs(ctx context.Context) ([]string, *Snapshot, error) {
	var (
		ids     []string
		snap    *Snapshot
		lastErr error
	)
	waitCtx, cancel := context.WithTimeout(ctx, a.timing.TableWait)
	defer cancel()

	err := retry.Poll(waitCtx, a.timing.PollInterval, func() (bool, error) {
		s, err := a.snapshot(waitCtx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		snap = s
		found, _, ok := runCascade(a, a.tracking, s, "")
		if ok {
			ids = found
		}
		return ok, nil
	})
	if err != nil && ctx.Err() != nil {
		return nil, nil, errs.Transport(operationTracking, ctx.Err())
	}
	if snap == nil {
		if lastErr != nil {
			return nil, nil, lastErr
		}
		return nil, nil, errs.Timeout(operationTracking, err)
	}
	if len(ids) == 0 {
		a.logger.Debug("Invoice shows no tracking ids")
	}
	return ids, snap, nil
}

// ClickTrackingEntry clicks the entry for id. It reports false when no
// element for id exists or the element vanished before the click. A page
// that stops answering is a transport error.
func (a *Agent) ClickTrackingEntry(ctx context.Context, id string) (bool, error) {
	var (
		target  string
		found   bool
		scanned bool
		lastErr error
	)
	waitCtx, cancel := context.WithTimeout(ctx, a.timing.TableWait)
	defer cancel()

	_ = retry.Poll(waitCtx, a.timing.PollInterval, func() (bool, error) {
		s, err := a.snapshot(waitCtx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		scanned = true
		target, _, found = runCascade(a, a.trackClick, s, id)
		return found, nil
	})
	if ctx.Err() != nil {
		return false, errs.Transport(operationTrackingClick, ctx.Err())
	}
	if !scanned && lastErr != nil {
		return false, lastErr
	}
	if !found {
		a.logger.WarnWithFields("Tracking entry not found", map[string]interface{}{"tracking_id": id})
		return false, nil
	}

	if err := a.page.Click(ctx, selectorFor(target)); err != nil {
		if ctx.Err() != nil {
			return false, errs.Transport(operationTrackingClick, err)
		}
		if _, pingErr := a.Ping(ctx); pingErr != nil {
			return false, errs.Transport(operationTrackingClick, err)
		}
		a.logger.WithError(err).WarnWithFields("Tracking entry click failed", map[string]interface{}{"tracking_id": id})
		return false, nil
	}
	return true, nil
}
