package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeShipmentFields(t *testing.T) {
	page := newFakePage(portalRoutes())
	require.NoError(t, page.Navigate(context.Background(), shipment1URL))
	a, rec := newTestAgent(t, page)

	fields, err := a.ScrapeShipmentFields(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Tracking Number":          "111111111111",
		"Service":                  "Ground",
		"Weight":                   "12 lb",
		"Charges - Freight":        "$10.00",
		"Charges - Fuel Surcharge": "$2.00",
		"Ship To - Name":           "Jane Doe",
		"Ship To - Company":        "Acme Corp",
		"Ship To - Address":        "1 Main St",
		"Ship To - City/State/Zip": "Springfield, IL 62701",
		"Ship To - Country":        "United States",
	}, fields)
	assert.Contains(t, rec.Hits(), "scrape-shipment-fields/label-marker")
}

func TestScrapeComputedStyleFallback(t *testing.T) {
	routes := portalRoutes()
	routes[shipment1URL] = `<html><body><div data-view="shipment-detail">
  <div><div data-ia-fs="12" data-ia-fw="400">Service</div><div data-ia-fs="16" data-ia-fw="400">Ground</div></div>
  <div><div data-ia-fs="16" data-ia-fw="700">Weight</div><div data-ia-fs="16" data-ia-fw="400">12 lb</div></div>
  <div><div data-ia-fs="16" data-ia-fw="400">Plain text</div><div data-ia-fs="16" data-ia-fw="400">ignored</div></div>
</div></body></html>`
	page := newFakePage(routes)
	require.NoError(t, page.Navigate(context.Background(), shipment1URL))
	a, rec := newTestAgent(t, page)

	fields, err := a.ScrapeShipmentFields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Service": "Ground", "Weight": "12 lb"}, fields)
	assert.Contains(t, rec.Hits(), "scrape-shipment-fields/computed-style")
}

func TestScrapeExpandsCollapsedSections(t *testing.T) {
	routes := portalRoutes()
	collapsed := `<html><body><div data-view="shipment-detail">
  <div class="field"><span class="field-label">Service</span><span>Ground</span></div>
  <details><summary>Customs</summary></details>
</div></body></html>`
	expanded := `<html><body><div data-view="shipment-detail">
  <div class="field"><span class="field-label">Service</span><span>Ground</span></div>
  <details open><summary>Customs</summary>
    <fieldset><legend>Customs</legend><div class="field"><span class="field-label">HS Code</span><span>8471.30</span></div></fieldset>
  </details>
</div></body></html>`
	routes[shipment1URL] = collapsed
	page := newFakePage(routes)
	page.expanded[shipment1URL] = expanded
	require.NoError(t, page.Navigate(context.Background(), shipment1URL))
	a, _ := newTestAgent(t, page)

	fields, err := a.ScrapeShipmentFields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ground", fields["Service"])
	assert.Equal(t, "8471.30", fields["Customs - HS Code"])
	_, unscoped := fields["HS Code"]
	assert.False(t, unscoped)
}

func TestScrapeEmptyPage(t *testing.T) {
	routes := portalRoutes()
	routes[shipment1URL] = `<html><body><p>Loading…</p></body></html>`
	page := newFakePage(routes)
	require.NoError(t, page.Navigate(context.Background(), shipment1URL))
	a, _ := newTestAgent(t, page)

	fields, err := a.ScrapeShipmentFields(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestParseAddressLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Address
	}{
		{
			name:  "six lines join the street",
			lines: []string{"Jane Doe", "Acme Corp", "1 Main St", "Suite 4", "Springfield, IL 62701", "US"},
			want:  Address{Name: "Jane Doe", Company: "Acme Corp", Street: "1 Main St, Suite 4", CityStateZip: "Springfield, IL 62701", Country: "US"},
		},
		{
			name:  "five lines",
			lines: []string{"Jane Doe", "Acme Corp", "1 Main St", "Springfield, IL 62701", "US"},
			want:  Address{Name: "Jane Doe", Company: "Acme Corp", Street: "1 Main St", CityStateZip: "Springfield, IL 62701", Country: "US"},
		},
		{
			name:  "four lines have no company",
			lines: []string{"Jane Doe", "1 Main St", "Springfield, IL 62701", "US"},
			want:  Address{Name: "Jane Doe", Street: "1 Main St", CityStateZip: "Springfield, IL 62701", Country: "US"},
		},
		{
			name:  "three lines",
			lines: []string{"Jane Doe", "1 Main St", "Springfield, IL 62701"},
			want:  Address{Name: "Jane Doe", Street: "1 Main St", CityStateZip: "Springfield, IL 62701"},
		},
		{
			name:  "two lines",
			lines: []string{"Jane Doe", "Springfield, IL 62701"},
			want:  Address{Name: "Jane Doe", CityStateZip: "Springfield, IL 62701"},
		},
		{
			name:  "one line",
			lines: []string{"  Jane   Doe "},
			want:  Address{Name: "Jane Doe"},
		},
		{
			name:  "blank lines are ignored",
			lines: []string{"", "  "},
			want:  Address{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAddressLines(tt.lines))
		})
	}
}

func TestAddressFieldsSkipEmptyParts(t *testing.T) {
	got := Address{Name: "Jane Doe", CityStateZip: "Springfield, IL"}.Fields("Ship From")
	assert.Equal(t, map[string]string{
		"Ship From - Name":           "Jane Doe",
		"Ship From - City/State/Zip": "Springfield, IL",
	}, got)
}

func TestTextLines(t *testing.T) {
	snap, err := NewSnapshot("u", `<div id="a">Jane <b>Doe</b><br>Acme<p>1 Main St</p><span>Springfield</span></div>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe", "Acme", "1 Main St", "Springfield"}, textLines(snap.Doc.Find("#a")))
}
