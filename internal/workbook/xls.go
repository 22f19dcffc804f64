package workbook

import (
	"bytes"
	"fmt"

	"github.com/shakinm/xlsReader/xls"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// readXLS reads every sheet of a legacy BIFF workbook.
//
// The reader renders each cell as its display string, so XLS cells are
// Text or Empty; the validator coerces numbers and serial dates from text.
func readXLS(data []byte) (sheets []*Sheet, err error) {
	// xlsReader panics on some truncated streams.
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("corrupt xls stream: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}

	for i := 0; i < wb.GetNumberSheets(); i++ {
		ws, err := wb.GetSheet(i)
		if err != nil || ws == nil {
			return nil, fmt.Errorf("failed to read sheet %d: %v", i, err)
		}

		sheet := &Sheet{Name: ws.GetName()}
		for _, row := range ws.GetRows() {
			if row == nil {
				sheet.Rows = append(sheet.Rows, nil)
				continue
			}
			cols := row.GetCols()
			cells := make([]types.CellValue, len(cols))
			for c, col := range cols {
				if col == nil {
					cells[c] = types.Empty{}
					continue
				}
				cells[c] = textCell(col.GetString())
			}
			sheet.Rows = append(sheet.Rows, cells)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}
