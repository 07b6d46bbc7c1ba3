package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/registrar/internal/record"
)

const sheetName = "Records"

func spreadsheetHeaders() []string {
	headers := []string{"ID", "Exported At"}
	headers = append(headers, record.DisplayFields()...)
	return append(headers, "Captured At", "Latitude", "Longitude", "Images")
}

// WriteXLSX renders entries as a workbook with one row per record. Entries
// whose payload no longer decodes are skipped with a warning.
func WriteXLSX(entries []*Entry, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range spreadsheetHeaders() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	row := 2
	for _, entry := range entries {
		r, err := entry.Decode()
		if err != nil {
			slog.Warn("Skipping undecodable record", "id", entry.ID, "error", err)
			continue
		}

		col := 1
		write := func(v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
			col++
		}

		write(entry.ID)
		write(entry.ExportedAt.Format(time.RFC3339))
		for _, field := range record.DisplayFields() {
			write(cellValue(r, field))
		}
		write(r.CapturedAt().Format(time.RFC3339))
		if p, ok := r.Position(); ok {
			write(p.Latitude)
			write(p.Longitude)
		} else {
			write("")
			write("")
		}
		write(len(entry.Images))

		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38) // id
	_ = f.SetColWidth(sheetName, "B", "B", 22) // exported at
	_ = f.SetColWidth(sheetName, "C", "C", 40) // title
	_ = f.SetColWidth(sheetName, "D", "I", 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// cellValue keeps the year numeric so spreadsheets can sort on it.
func cellValue(r *record.Record, field string) any {
	if field == record.FieldCreationYear {
		if r.CreationYear == nil {
			return ""
		}
		return *r.CreationYear
	}
	for name, value := range r.DisplayEntries() {
		if name == field {
			return value
		}
	}
	return ""
}
