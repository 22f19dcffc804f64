// =============================================================================
// PRF Budget Import - Row Projector
// =============================================================================
//
// This module maps a sheet's header row to canonical field names and projects
// every non-blank data row below it into a types.RawRow.
//
// RULES:
//   - The header row is given by index; it is not assumed to be row 0.
//   - Rows where every cell is empty are skipped.
//   - An empty header cell contributes no field.
//   - Unknown headers are kept under their trimmed text.
//   - When two columns resolve to the same field, the first one wins.
//   - No coercion happens here. Cells are passed through untouched so the
//     validator can quote the original content.
//
// =============================================================================

package projector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// ErrHeaderRowOutOfRange is returned when the header row index is not a row
// of the sheet.
var ErrHeaderRowOutOfRange = errors.New("header row out of range")

// Column describes one mapped header cell.
type Column struct {
	Index  int
	Header string
	Field  string
	Known  bool
}

// Projection is the result of projecting one sheet.
type Projection struct {
	// HeaderRow is the 1-based row number of the header.
	HeaderRow int

	// Columns lists the mapped columns in sheet order, duplicates excluded.
	Columns []Column

	// Rows holds one RawRow per non-blank data row.
	Rows []types.RawRow
}

// HasField reports whether any column maps to the canonical field.
func (p *Projection) HasField(field string) bool {
	for _, c := range p.Columns {
		if c.Field == field {
			return true
		}
	}
	return false
}

// UnknownHeaders returns headers that matched no canonical field.
func (p *Projection) UnknownHeaders() []string {
	var unknown []string
	for _, c := range p.Columns {
		if !c.Known {
			unknown = append(unknown, c.Header)
		}
	}
	return unknown
}

// Project maps rows through the header at headerIndex.
//
// PARAMETERS:
//   - rows: The sheet rows as returned by the workbook reader.
//   - headerIndex: Zero-based index of the header row.
//   - dict: The header dictionary for this kind of sheet.
//
// RETURNS:
//   - The projection.
//   - ErrHeaderRowOutOfRange if the sheet has no row at headerIndex.
func Project(rows [][]types.CellValue, headerIndex int, dict *Dictionary) (*Projection, error) {
	if headerIndex < 0 || headerIndex >= len(rows) {
		return nil, fmt.Errorf("%w: index %d, sheet has %d rows", ErrHeaderRowOutOfRange, headerIndex, len(rows))
	}

	p := &Projection{HeaderRow: headerIndex + 1}
	p.Columns = mapHeader(rows[headerIndex], dict)

	for i := headerIndex + 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		raw := types.RawRow{
			RowNumber: i + 1,
			Fields:    make(map[string]types.CellValue, len(p.Columns)),
		}
		for _, col := range p.Columns {
			if col.Index < len(row) && row[col.Index] != nil {
				raw.Fields[col.Field] = row[col.Index]
			} else {
				raw.Fields[col.Field] = types.Empty{}
			}
		}
		p.Rows = append(p.Rows, raw)
	}
	return p, nil
}

// mapHeader builds the column list from the header cells.
func mapHeader(header []types.CellValue, dict *Dictionary) []Column {
	var columns []Column
	seen := make(map[string]bool)

	for idx, cell := range header {
		text := types.CellText(cell)
		if text == "" {
			continue
		}

		field, known := dict.Canonical(text)
		if !known {
			field = text
		}
		if seen[field] {
			continue
		}
		seen[field] = true

		columns = append(columns, Column{Index: idx, Header: text, Field: field, Known: known})
	}
	return columns
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []types.CellValue) bool {
	for _, cell := range row {
		if !types.IsBlank(cell) {
			return false
		}
	}
	return true
}

// DescribeColumns renders the mapping for debug logs.
func DescribeColumns(cols []Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.Known {
			parts = append(parts, fmt.Sprintf("%s=%s", c.Header, c.Field))
		} else {
			parts = append(parts, fmt.Sprintf("%s=?", c.Header))
		}
	}
	return strings.Join(parts, ", ")
}
