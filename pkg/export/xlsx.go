// Package export renders receipts as spreadsheets.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"homeledger/models"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
)

// ReceiptsXLSX returns a workbook with one row per receipt on the
// "Receipts" sheet and one row per line item on the "Items" sheet.
func ReceiptsXLSX(receipts []models.Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with Sheet1; rename it instead of adding a second sheet
	if err := f.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	writeRow(f, receiptsSheet, 1, "Receipt ID", "Date", "Store", "Total", "Items", "Items Sum", "OCR Timed Out", "Image")
	writeRow(f, itemsSheet, 1, "Receipt ID", "Name", "Quantity", "Unit Price", "Total")

	itemRow := 2
	for i, r := range receipts {
		var sum float64
		for _, it := range r.Items {
			sum += it.Total
			writeRow(f, itemsSheet, itemRow, r.ID, it.Name, it.Quantity, it.UnitPrice, it.Total)
			itemRow++
		}
		store, total := "", any("")
		if r.Store != nil {
			store = *r.Store
		}
		if r.Total != nil {
			total = *r.Total
		}
		writeRow(f, receiptsSheet, i+2, r.ID, r.Date.Format("2006-01-02"), store, total, len(r.Items), models.LineTotal(sum, 1), r.OCRTimedOut, r.ImageURL)
	}

	_ = f.SetColWidth(receiptsSheet, "B", "B", 12)
	_ = f.SetColWidth(receiptsSheet, "C", "C", 28)
	_ = f.SetColWidth(receiptsSheet, "H", "H", 48)
	_ = f.SetColWidth(itemsSheet, "B", "B", 36)
	idx, _ := f.GetSheetIndex(receiptsSheet)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
