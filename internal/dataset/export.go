// Package dataset writes the call log out as an Excel workbook.
package dataset

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"reception-agent-go/internal/mask"
	"reception-agent-go/internal/types"
)

const SheetName = "Calls"

var header = []any{"ID", "Created At", "Caller Name", "Phone", "Department", "Priority", "Summary", "AI Response", "Transcript"}

// WriteXLSX writes records to w as a single-sheet workbook. Phone numbers are
// masked; the workbook is a read path like any other.
func WriteXLSX(w io.Writer, records []types.CallRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, style)
	}

	for i, rec := range mask.Records(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.CallerName,
			rec.PhoneNumber,
			rec.Department,
			string(rec.Priority),
			rec.Summary,
			rec.AIResponse,
			rec.Transcript,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "B", "B", 22)
	_ = f.SetColWidth(SheetName, "G", "I", 60)
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
