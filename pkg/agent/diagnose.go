package agent

import (
	"context"

	"invoicescraper/pkg/amount"
	"invoicescraper/pkg/protocol"
)

const maxDiagnosticValues = 25

// Diagnose captures what the page currently shows
func (a *Agent) Diagnose(ctx context.Context) (*protocol.Diagnostics, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return a.diagnostics(snap), nil
}

// diagnostics lists the known markers present plus the amount-like and
// identifier-like texts visible in snap
func (a *Agent) diagnostics(snap *Snapshot) *protocol.Diagnostics {
	d := &protocol.Diagnostics{URL: snap.URL}

	markers := []string{a.portal.InvoiceMarker, a.portal.ShipmentMarker, a.cfg.Component.Container}
	markers = append(markers, a.cfg.RowSelectors...)
	markers = append(markers, a.cfg.VirtualContainers...)
	seenMarker := map[string]bool{}
	for _, m := range markers {
		if m != "" && !seenMarker[m] && snap.Doc.Find(m).Length() > 0 {
			seenMarker[m] = true
			d.Markers = append(d.Markers, m)
		}
	}
	if n := snap.Doc.Find("table").Length(); n > 0 {
		d.Markers = append(d.Markers, "table")
	}

	seenAmount := map[string]bool{}
	seenID := map[string]bool{}
	for _, leaf := range leaves(snap.Doc.Find("body")) {
		t := textOf(leaf)
		if amount.Looks(t) && len(d.VisibleAmounts) < maxDiagnosticValues {
			d.VisibleAmounts = appendUnique(d.VisibleAmounts, seenAmount, t)
			continue
		}
		if len(d.IdentifierLike) >= maxDiagnosticValues {
			continue
		}
		for _, tok := range tokens(t) {
			if a.invoiceNumber.MatchString(tok) || a.identifier.MatchString(tok) {
				d.IdentifierLike = appendUnique(d.IdentifierLike, seenID, tok)
			}
		}
	}
	return d
}
