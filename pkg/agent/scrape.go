package agent

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/retry"
)

const (
	operationScrape = "scrape-shipment-fields"
	sectionAttr     = "data-ia-section"
)

// fieldSet collects label/value pairs; the first value for a key wins
type fieldSet map[string]string

func (f fieldSet) add(key, value string) {
	key = trimLabel(key)
	value = cleanText(value)
	if key == "" || value == "" || strings.EqualFold(key, value) {
		return
	}
	if _, ok := f[key]; !ok {
		f[key] = value
	}
}

func trimLabel(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(cleanText(s), ":"))
}

// ScrapeShipmentFields extracts the fields of the current shipment view.
// Collapsed sections are expanded first. Explicitly labeled pairs are read
// outside category sections; the computed-style heuristic runs only when
// those yield nothing. Category sections and address blocks contribute keys
// prefixed with their heading.
func (a *Agent) ScrapeShipmentFields(ctx context.Context) (map[string]string, error) {
	if err := a.ensure(ctx); err != nil {
		return nil, err
	}
	var expanded int
	if err := a.evaluate(ctx, "expand", scriptExpand, nil, &expanded); err != nil {
		return nil, err
	}
	if expanded > 0 {
		if err := retry.Wait(ctx, a.timing.ExpandWait); err != nil {
			return nil, errs.Transport("scrape", err)
		}
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	body := snap.Doc.Find("body")
	sections := a.markSections(body)

	fields := fieldSet{}
	strategy := "label-marker"
	a.labelPairs(body, true, fields)
	if len(fields) == 0 {
		strategy = "computed-style"
		a.computedPairs(body, true, fields)
	}
	if len(fields) > 0 {
		logger.LogStrategyMatch(a.logger, operationScrape, strategy, map[string]interface{}{"fields": len(fields)})
		if a.observer != nil {
			a.observer.ObserveStrategy(operationScrape, strategy)
		}
	}

	for prefix, container := range sections {
		scoped := fieldSet{}
		a.labelPairs(container, false, scoped)
		if len(scoped) == 0 {
			a.computedPairs(container, false, scoped)
		}
		for k, v := range scoped {
			fields.add(prefix+" - "+k, v)
		}
	}

	for k, v := range a.addressFields(body) {
		fields.add(k, v)
	}

	a.logger.DebugWithFields("Shipment fields scraped", map[string]interface{}{
		"url":      snap.URL,
		"fields":   len(fields),
		"sections": len(sections),
	})
	return fields, nil
}

// markSections finds category headings and tags their containers in the
// parsed document so the unscoped pass can skip them
func (a *Agent) markSections(body *goquery.Selection) map[string]*goquery.Selection {
	sections := map[string]*goquery.Selection{}
	body.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		text := textOf(h)
		for _, prefix := range a.cfg.SectionPrefixes {
			if !hasPrefixFold(text, prefix) {
				continue
			}
			if _, taken := sections[prefix]; taken {
				return
			}
			container := h.Closest("section, fieldset, [role='region']")
			if container.Length() == 0 {
				container = h.Parent()
			}
			if container.Length() == 0 || goquery.NodeName(container) == "body" {
				return
			}
			container.SetAttr(sectionAttr, prefix)
			sections[prefix] = container
			return
		}
	})
	return sections
}

func outsideSections(s *goquery.Selection) bool {
	return s.Closest("["+sectionAttr+"]").Length() == 0
}

// labelPairs reads explicit label markers: attribute labels, label-styled
// elements followed by their value, and definition lists
func (a *Agent) labelPairs(scope *goquery.Selection, skipSections bool, out fieldSet) {
	keep := func(s *goquery.Selection) bool {
		return isVisible(s) && (!skipSections || outsideSections(s))
	}

	for _, sel := range a.cfg.LabelSelectors {
		attr := attributeName(sel)
		scope.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if !keep(s) {
				return
			}
			if attr != "" {
				if key, ok := s.Attr(attr); ok && key != "" {
					value := textOf(s)
					if value == "" || strings.EqualFold(trimLabel(value), key) {
						value = textOf(s.Next())
					}
					out.add(key, value)
					return
				}
			}
			out.add(textOf(s), labelValue(s))
		})
	}

	scope.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if !keep(dt) {
			return
		}
		if dd := dt.Next(); dd.Is("dd") {
			out.add(textOf(dt), textOf(dd))
		}
	})
}

// labelValue is the element after a label, or the parent text without
// the label when the label has no sibling
func labelValue(label *goquery.Selection) string {
	if next := label.Next(); next.Length() > 0 {
		return textOf(next)
	}
	parent := textOf(label.Parent())
	return strings.TrimSpace(strings.TrimPrefix(parent, textOf(label)))
}

// attributeName returns attr for a bare "[attr]" selector
func attributeName(sel string) string {
	if strings.HasPrefix(sel, "[") && strings.HasSuffix(sel, "]") && !strings.ContainsAny(sel, "=~^$*|") {
		return strings.TrimSpace(sel[1 : len(sel)-1])
	}
	return ""
}

// computedPairs treats short small-font or bold leaves as labels and the
// next differently styled element as their value
func (a *Agent) computedPairs(scope *goquery.Selection, skipSections bool, out fieldSet) {
	for _, leaf := range leaves(scope) {
		if skipSections && !outsideSections(leaf) {
			continue
		}
		text := textOf(leaf)
		if text == "" || len(text) > 60 {
			continue
		}
		fs, fw := style(leaf)
		if !((fs > 0 && fs <= a.cfg.SmallFontPx) || fw >= a.cfg.BoldWeight) {
			continue
		}
		value := leaf.Next()
		if value.Length() == 0 {
			value = leaf.Parent().Next()
		}
		if value.Length() == 0 {
			continue
		}
		vfs, vfw := style(value)
		if vfs == fs && vfw == fw {
			continue
		}
		out.add(text, textOf(value))
	}
}
