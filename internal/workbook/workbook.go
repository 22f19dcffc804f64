// =============================================================================
// PRF Budget Import - Workbook Reader
// =============================================================================
//
// This module opens an uploaded spreadsheet and exposes its sheets as ordered
// rows of typed cells. It supports:
//   - XLSX / XLSM (excelize)
//   - Legacy XLS (xlsReader)
//   - CSV / TXT, with configurable delimiter and encoding
//
// CONTRACT:
//   - Every row of a sheet has the same width; blank cells are types.Empty.
//   - Row i of Sheet.Rows is row i+1 of the original sheet, blank rows
//     included, so downstream row numbers match what the user sees.
//   - No business semantics live here.
//
// =============================================================================

package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

var (
	// ErrUnreadableWorkbook is returned when the byte stream is not a
	// parseable spreadsheet or CSV file.
	ErrUnreadableWorkbook = errors.New("unreadable workbook")

	// ErrSheetNotFound is returned when a named sheet does not exist.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Format identifies the container format of an upload.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// Options controls how CSV uploads are decoded. Spreadsheet formats ignore it.
type Options struct {
	// Delimiter: "," (default), ";", "|", "tab".
	Delimiter string
	// Encoding: "UTF-8" (default), "ISO-8859-1", "Windows-1252".
	Encoding string
}

// Sheet is one worksheet: its name and its rows of cells.
type Sheet struct {
	Name string
	Rows [][]types.CellValue
}

// Workbook is an opened upload. It holds no file handles.
type Workbook struct {
	Format Format
	sheets []*Sheet
}

// =============================================================================
// OPENING
// =============================================================================

// Open parses an uploaded file.
//
// PARAMETERS:
//   - name: The original file name. Its extension selects the format; when
//     the extension is unknown the content is sniffed.
//   - data: The raw file bytes.
//   - opts: CSV decoding options.
//
// RETURNS:
//   - The opened Workbook.
//   - An error wrapping ErrUnreadableWorkbook if the content cannot be parsed
//     or contains no sheets.
func Open(name string, data []byte, opts Options) (*Workbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadableWorkbook)
	}

	format := DetectFormat(name, data)

	var (
		sheets []*Sheet
		err    error
	)
	switch format {
	case FormatXLSX:
		sheets, err = readXLSX(data)
	case FormatXLS:
		sheets, err = readXLS(data)
	default:
		sheets, err = readCSV(sheetNameFromFile(name), data, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableWorkbook, format, err)
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableWorkbook)
	}

	for _, s := range sheets {
		padRows(s)
	}
	return &Workbook{Format: format, sheets: sheets}, nil
}

// DetectFormat picks the reader for a file: extension first, then magic
// bytes, then CSV.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	case ".csv", ".txt":
		return FormatCSV
	}

	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatXLSX
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		return FormatXLS
	default:
		return FormatCSV
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the named sheet.
func (w *Workbook) Sheet(name string) (*Sheet, error) {
	for _, s := range w.sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

// Rows returns the rows of the named sheet.
func (w *Workbook) Rows(name string) ([][]types.CellValue, error) {
	s, err := w.Sheet(name)
	if err != nil {
		return nil, err
	}
	return s.Rows, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// padRows extends every row to the sheet's widest row with Empty cells and
// replaces any nil cell with Empty.
func padRows(s *Sheet) {
	width := 0
	for _, row := range s.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range s.Rows {
		for j, c := range row {
			if c == nil {
				row[j] = types.Empty{}
			}
		}
		for len(row) < width {
			row = append(row, types.Empty{})
		}
		s.Rows[i] = row
	}
}

// sheetNameFromFile names the single sheet of a CSV upload.
func sheetNameFromFile(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "Sheet1"
	}
	return stem
}

// textCell turns raw text into a Text cell, or Empty when it is blank.
func textCell(s string) types.CellValue {
	if strings.TrimSpace(s) == "" {
		return types.Empty{}
	}
	return types.Text(s)
}
