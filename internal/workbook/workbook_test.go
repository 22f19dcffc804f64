package workbook

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// buildXLSX writes the given sheets, in order, into an in-memory workbook.
func buildXLSX(t *testing.T, order []string, sheets map[string][][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			if len(row) == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestOpen_XLSX(t *testing.T) {
	submitted := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	data := buildXLSX(t, []string{"PRF Data", "Budget 2024"}, map[string][][]any{
		"PRF Data": {
			{"Purchase Requests"},
			{"PRF No", "Date", "Requested By", "Qty", "Unit Price"},
			{"PRF-100", submitted, "A.Doe", 2, 1500.5},
		},
		"Budget 2024": {
			{"Cost Code", "Fiscal Year", "Amount"},
			{"OPS-01", 2024, 50000},
		},
	})

	wb, err := Open("upload.xlsx", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, wb.Format)
	assert.Equal(t, []string{"PRF Data", "Budget 2024"}, wb.SheetNames())

	rows, err := wb.Rows("PRF Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	t.Run("rows_are_padded_to_sheet_width", func(t *testing.T) {
		for _, row := range rows {
			assert.Len(t, row, 5)
		}
		assert.Equal(t, types.Text("Purchase Requests"), rows[0][0])
		assert.Equal(t, types.Empty{}, rows[0][4])
	})

	t.Run("strings_are_text", func(t *testing.T) {
		assert.Equal(t, types.Text("PRF-100"), rows[2][0])
		assert.Equal(t, types.Text("A.Doe"), rows[2][2])
	})

	t.Run("numbers_keep_precision", func(t *testing.T) {
		assert.Equal(t, types.Number(2), rows[2][3])
		assert.Equal(t, types.Number(1500.5), rows[2][4])
	})

	t.Run("date_formatted_cells_arrive_as_serials", func(t *testing.T) {
		assert.Equal(t, types.Number(45296), rows[2][1])
	})
}

func TestOpen_XLSXDetectedByContent(t *testing.T) {
	data := buildXLSX(t, []string{"Sheet1"}, map[string][][]any{
		"Sheet1": {{"a"}},
	})

	wb, err := Open("upload.bin", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, wb.Format)
}

func TestOpen_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFPRF No,Qty\nPRF-1, 2\n\nPRF-2,3,extra\n")

	wb, err := Open("requests.csv", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, wb.Format)
	assert.Equal(t, []string{"requests"}, wb.SheetNames())

	rows, err := wb.Rows("requests")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, types.Text("PRF No"), rows[0][0])
	assert.Equal(t, types.Text("2"), rows[1][1])
	assert.Equal(t, []types.CellValue{types.Empty{}, types.Empty{}, types.Empty{}}, rows[2])
	assert.Equal(t, types.Text("extra"), rows[3][2])
	assert.Equal(t, types.Empty{}, rows[0][2])
}

func TestOpen_CSVDelimiterAndEncoding(t *testing.T) {
	// "Peña" in Windows-1252.
	data := []byte("Name;Amount\nPe\xf1a;10\n")

	wb, err := Open("budget.txt", data, Options{Delimiter: "semicolon", Encoding: "Windows-1252"})
	require.NoError(t, err)

	rows, err := wb.Rows("budget")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, types.Text("Peña"), rows[1][0])
	assert.Equal(t, types.Text("10"), rows[1][1])
}

func TestOpen_Unreadable(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
	}{
		{"empty", "a.xlsx", nil},
		{"corrupt_xlsx", "a.xlsx", []byte("PK\x03\x04not really a zip")},
		{"binary_csv", "a.csv", []byte{0x00, 0x01, 0x02}},
		{"invalid_utf8", "a.csv", []byte("a,b\n\xff\xfe,c\n")},
		{"corrupt_xls", "a.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.fileName, tt.data, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnreadableWorkbook), "got %v", err)
		})
	}
}

func TestOpen_CorruptXLS(t *testing.T) {
	// A compound-file signature followed by a header that is not one.
	data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, bytes.Repeat([]byte{0xAB}, 504)...)

	for _, name := range []string{"budget.xls", "upload"} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, FormatXLS, DetectFormat(name, data))

			wb, err := Open(name, data, Options{})
			assert.Nil(t, wb)
			assert.ErrorIs(t, err, ErrUnreadableWorkbook)
		})
	}
}

func TestWorkbook_UnknownSheet(t *testing.T) {
	wb, err := Open("a.csv", []byte("x\n"), Options{})
	require.NoError(t, err)

	_, err = wb.Rows("missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat("A.XLSX", nil))
	assert.Equal(t, FormatXLSX, DetectFormat("a.xlsm", nil))
	assert.Equal(t, FormatXLS, DetectFormat("a.xls", nil))
	assert.Equal(t, FormatCSV, DetectFormat("a.csv", []byte("PK\x03\x04")))
	assert.Equal(t, FormatXLS, DetectFormat("upload", []byte{0xD0, 0xCF, 0x11, 0xE0}))
	assert.Equal(t, FormatCSV, DetectFormat("upload", []byte("a,b")))
}

func TestClassifyXLSXCell(t *testing.T) {
	assert.Equal(t, types.Text("00123"), classifyXLSXCell(excelize.CellTypeSharedString, "00123"))
	assert.Equal(t, types.Text("TRUE"), classifyXLSXCell(excelize.CellTypeBool, "1"))
	assert.Equal(t, types.Text("FALSE"), classifyXLSXCell(excelize.CellTypeBool, "0"))
	assert.Equal(t, types.Number(42.25), classifyXLSXCell(excelize.CellTypeUnset, "42.25"))
	assert.Equal(t, types.Text("n/a"), classifyXLSXCell(excelize.CellTypeFormula, "n/a"))

	d := classifyXLSXCell(excelize.CellTypeDate, "2024-03-01T00:00:00Z")
	require.IsType(t, types.Date{}, d)
	assert.Equal(t, "2024-03-01", d.String())
}
