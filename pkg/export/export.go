// Package export turns an extraction result into an xlsx workbook with one
// sheet per target amount.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
)

// NoShipmentsNotice is written on sheets of invoices without shipments
const NoShipmentsNotice = "No shipments found"

const (
	defaultSheet   = "Sheet1"
	minColumnWidth = 8
)

// Artifact is a rendered workbook
type Artifact struct {
	Name   string
	Data   []byte
	Sheets []string
}

// Sink renders a frozen result into an artifact
type Sink interface {
	Export(ctx context.Context, result *models.ExtractionResult, runID string) (*Artifact, error)
}

// Workbook is the excelize-backed Sink
type Workbook struct {
	cfg    config.ExportConfig
	logger logger.Logger
	now    func() time.Time
}

// NewWorkbook creates a workbook sink
func NewWorkbook(cfg config.ExportConfig, log logger.Logger) *Workbook {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Workbook{cfg: cfg, logger: log.WithField("component", "export"), now: time.Now}
}

// Export writes one sheet per record in result order
func (w *Workbook) Export(ctx context.Context, result *models.ExtractionResult, runID string) (*Artifact, error) {
	start := time.Now()
	records := result.Records()

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errs.Fatal("export", fmt.Errorf("header style: %w", err))
	}

	used := map[string]bool{}
	var sheets []string
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, errs.Fatal("export", err)
		}
		name := uniqueSheetName(SheetName(rec.Amount, w.cfg.MaxSheetNameLength), w.cfg.MaxSheetNameLength, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, errs.Fatal("export", fmt.Errorf("sheet %s: %w", name, err))
		}
		if len(rec.Shipments) == 0 {
			err = writeNotice(f, name, rec)
		} else {
			err = w.writeShipments(f, name, rec, header)
		}
		if err != nil {
			return nil, errs.Fatal("export", fmt.Errorf("sheet %s: %w", name, err))
		}
		sheets = append(sheets, name)
	}

	if len(sheets) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, errs.Fatal("export", err)
		}
		if idx, err := f.GetSheetIndex(sheets[0]); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errs.Fatal("export", fmt.Errorf("xlsx write: %w", err))
	}

	art := &Artifact{
		Name:   FileName(w.cfg.FileNamePattern, w.now(), runID),
		Data:   buf.Bytes(),
		Sheets: sheets,
	}
	w.logger.InfoWithFields("Workbook rendered", map[string]interface{}{
		"file":       art.Name,
		"sheets":     len(sheets),
		"bytes":      len(art.Data),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return art, nil
}

func writeNotice(f *excelize.File, sheet string, rec models.InvoiceRecord) error {
	rows := [][]interface{}{
		{"Invoice Number", rec.InvoiceNumber},
		{"Amount", rec.Amount},
		{NoShipmentsNotice},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "B", 18)
}

func (w *Workbook) writeShipments(f *excelize.File, sheet string, rec models.InvoiceRecord, headerStyle int) error {
	columns := OrderColumns(rec.Shipments, w.cfg.PreferredFields)
	widths := make([]int, len(columns))

	write := func(col, row int, v string) error {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		if n := utf8.RuneCountInString(v); n > widths[col] {
			widths[col] = n
		}
		return f.SetCellValue(sheet, cell, v)
	}

	for i, c := range columns {
		if err := write(i, 1, c); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, shipment := range rec.Shipments {
		for i, c := range columns {
			v, ok := shipment[c]
			if !ok || v == "" {
				continue
			}
			if err := write(i, r+2, v); err != nil {
				return err
			}
		}
	}

	for i, n := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w.columnWidth(n)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) columnWidth(chars int) float64 {
	width := float64(chars + 2)
	if width < minColumnWidth {
		width = minColumnWidth
	}
	if w.cfg.MaxColumnWidth > 0 && width > w.cfg.MaxColumnWidth {
		width = w.cfg.MaxColumnWidth
	}
	return width
}

// OrderColumns returns the preferred fields present in any shipment, in
// preferred order, followed by every other field sorted lexicographically
func OrderColumns(shipments []models.ShipmentRecord, preferred []string) []string {
	present := map[string]bool{}
	for _, s := range shipments {
		for k := range s {
			present[k] = true
		}
	}

	var columns []string
	for _, p := range preferred {
		if present[p] {
			columns = append(columns, p)
			delete(present, p)
		}
	}
	rest := make([]string, 0, len(present))
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

var sheetNameReplacer = strings.NewReplacer(
	`\`, "", "/", "", "?", "", "*", "", "[", "", "]", "", ":", "", ",", "",
)

// SheetName derives the sheet name for an amount: "$" plus the amount with
// characters Excel rejects removed, truncated to maxLen runes
func SheetName(amount string, maxLen int) string {
	name := sheetNameReplacer.Replace("$" + strings.TrimPrefix(strings.TrimSpace(amount), "$"))
	return truncateRunes(name, maxLen)
}

// uniqueSheetName appends " (2)", " (3)" and so on until name is unused.
// Excel compares sheet names case-insensitively.
func uniqueSheetName(name string, maxLen int, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(name, maxLen-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FileName expands {date}, {timestamp} and {run} in pattern
func FileName(pattern string, t time.Time, runID string) string {
	if pattern == "" {
		pattern = "invoices_{timestamp}.xlsx"
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := strings.NewReplacer(
		"{date}", t.Format("2006-01-02"),
		"{timestamp}", t.Format("20060102_150405"),
		"{run}", short,
	).Replace(pattern)
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}
