package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
)

func testWorkbook() *Workbook {
	w := NewWorkbook(config.DefaultConfig().Export, logger.NewNopLogger())
	w.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
	return w
}

func openArtifact(t *testing.T, art *Artifact) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(art.Data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		amount string
		maxLen int
		want   string
	}{
		{"452.67", 31, "$452.67"},
		{"$1,431.43", 31, "$1431.43"},
		{`12/3:4?5*[6]\7`, 31, "$1234567"},
		{"123456789.12", 6, "$12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SheetName(tt.amount, tt.maxLen), tt.amount)
	}
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "$10.00", uniqueSheetName("$10.00", 31, used))
	assert.Equal(t, "$10.00 (2)", uniqueSheetName("$10.00", 31, used))
	assert.Equal(t, "$10.00 (3)", uniqueSheetName("$10.00", 31, used))

	used = map[string]bool{"$12345": true}
	got := uniqueSheetName("$12345", 7, used)
	assert.Equal(t, "$12 (2)", got)
	assert.LessOrEqual(t, len(got), 7)
}

func TestOrderColumns(t *testing.T) {
	shipments := []models.ShipmentRecord{
		{"Zone": "4", "Service": "Ground", "Tracking Number": "1"},
		{"Weight": "2 lb", "Accessorial": "Residential"},
	}
	got := OrderColumns(shipments, []string{"Tracking Number", "Ship Date", "Service", "Weight"})
	assert.Equal(t, []string{"Tracking Number", "Service", "Weight", "Accessorial", "Zone"}, got)
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 5, 0, time.UTC)
	assert.Equal(t, "invoices_20240315_093005.xlsx", FileName("invoices_{timestamp}.xlsx", at, "run"))
	assert.Equal(t, "2024-03-15-0badc0de.xlsx", FileName("{date}-{run}", at, "0badc0de-1234"))
	assert.Equal(t, "invoices_20240315_093005.xlsx", FileName("", at, ""))
}

func TestExportWorkbook(t *testing.T) {
	result := models.NewExtractionResult()
	require.NoError(t, result.Put(models.InvoiceRecord{
		Amount:        "452.67",
		InvoiceNumber: "INV001",
		Shipments: []models.ShipmentRecord{
			{"Tracking Number": "111111111111", "Service": "Ground", "Zone": "4"},
			{"Tracking Number": "222222222222", "Service": "Express", "Dim Weight": "3 lb"},
		},
	}))
	require.NoError(t, result.Put(models.InvoiceRecord{Amount: "1431.43", InvoiceNumber: models.NotFound}))
	result.Freeze()

	art, err := testWorkbook().Export(context.Background(), result, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "invoices_20240315_093000.xlsx", art.Name)
	assert.Equal(t, []string{"$452.67", "$1431.43"}, art.Sheets)

	f := openArtifact(t, art)
	assert.Equal(t, []string{"$452.67", "$1431.43"}, f.GetSheetList())

	rows, err := f.GetRows("$452.67")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Tracking Number", "Service", "Dim Weight", "Zone"}, rows[0])
	assert.Equal(t, []string{"111111111111", "Ground", "", "4"}, rows[1])
	assert.Equal(t, []string{"222222222222", "Express", "3 lb"}, rows[2])

	styleID, err := f.GetCellStyle("$452.67", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	notice, err := f.GetRows("$1431.43")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Invoice Number", models.NotFound},
		{"Amount", "1431.43"},
		{NoShipmentsNotice},
	}, notice)
}

func TestExportColumnWidthCapped(t *testing.T) {
	result := models.NewExtractionResult()
	require.NoError(t, result.Put(models.InvoiceRecord{
		Amount:        "10.00",
		InvoiceNumber: "INV9",
		Shipments:     []models.ShipmentRecord{{"Notes": strings.Repeat("x", 200), "Zone": "1"}},
	}))

	w := testWorkbook()
	art, err := w.Export(context.Background(), result, "")
	require.NoError(t, err)

	f := openArtifact(t, art)
	notes, err := f.GetColWidth("$10.00", "A")
	require.NoError(t, err)
	assert.Equal(t, w.cfg.MaxColumnWidth, notes)
	zone, err := f.GetColWidth("$10.00", "B")
	require.NoError(t, err)
	assert.Equal(t, float64(minColumnWidth), zone)
}

func TestExportCancelled(t *testing.T) {
	result := models.NewExtractionResult()
	require.NoError(t, result.Put(models.InvoiceRecord{Amount: "1.00", InvoiceNumber: models.Error}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testWorkbook().Export(ctx, result, "")
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
}
