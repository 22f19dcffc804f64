package workbook

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// =============================================================================
// XLSX READER
// =============================================================================

// readXLSX reads every sheet of an XLSX workbook.
//
// Cells are read raw (no number formatting) so that numbers keep their full
// precision and date-formatted numbers arrive as serial Numbers. The cell
// type recorded in the sheet decides the variant:
//   - shared / inline strings -> Text
//   - ISO date cells (t="d")  -> Date
//   - booleans                -> Text "TRUE" / "FALSE"
//   - everything else         -> Number when it parses, otherwise Text
func readXLSX(data []byte) ([]*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var sheets []*Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read rows of sheet '%s': %w", name, err)
		}

		sheet := &Sheet{Name: name, Rows: make([][]types.CellValue, len(rows))}
		for r, row := range rows {
			cells := make([]types.CellValue, len(row))
			for c, raw := range row {
				if strings.TrimSpace(raw) == "" {
					cells[c] = types.Empty{}
					continue
				}
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return nil, err
				}
				cellType, err := f.GetCellType(name, ref)
				if err != nil {
					return nil, fmt.Errorf("failed to read cell %s!%s: %w", name, ref, err)
				}
				cells[c] = classifyXLSXCell(cellType, raw)
			}
			sheet.Rows[r] = cells
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// classifyXLSXCell maps a raw cell value to a CellValue variant.
func classifyXLSXCell(cellType excelize.CellType, raw string) types.CellValue {
	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return types.Text(raw)
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return types.Text("TRUE")
		}
		return types.Text("FALSE")
	case excelize.CellTypeDate:
		if t, ok := parseISOCell(raw); ok {
			return types.Date{Time: t}
		}
		return types.Text(raw)
	}

	if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return types.Number(n)
	}
	return types.Text(raw)
}

// isoCellLayouts are the layouts used by t="d" cells.
var isoCellLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999",
	"2006-01-02",
}

func parseISOCell(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoCellLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
