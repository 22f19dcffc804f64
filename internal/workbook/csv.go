package workbook

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// =============================================================================
// CSV READER
// =============================================================================

// readCSV reads a delimited text upload as a single sheet.
//
// PARSING PROCESS:
//  1. Reject binary content, then decode from the configured encoding
//  2. Strip a UTF-8 byte order mark
//  3. Configure the CSV reader with the configured delimiter
//  4. Read every record; blank fields become Empty, the rest Text
func readCSV(sheetName string, data []byte, opts Options) ([]*Sheet, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("binary content is not delimited text")
	}

	var reader io.Reader = bytes.NewReader(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")))

	switch strings.ToUpper(strings.TrimSpace(opts.Encoding)) {
	case "", "UTF-8", "UTF8":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("content is not valid UTF-8")
		}
	case "ISO-8859-1", "LATIN1":
		reader = transform.NewReader(reader, charmap.ISO8859_1.NewDecoder())
	case "WINDOWS-1252", "CP1252":
		reader = transform.NewReader(reader, charmap.Windows1252.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding %q", opts.Encoding)
	}

	csvReader := csv.NewReader(bufio.NewReader(reader))
	configureReader(csvReader, opts)

	// Blank lines are skipped by encoding/csv; records are placed at their
	// starting line so row numbers match the file.
	var rows [][]types.CellValue
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		for len(rows) < line-1 {
			rows = append(rows, nil)
		}
		cells := make([]types.CellValue, len(record))
		for j, field := range record {
			cells[j] = textCell(field)
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	return []*Sheet{{Name: sheetName, Rows: rows}}, nil
}

// configureReader configures the CSV reader based on the options.
func configureReader(reader *csv.Reader, opts Options) {
	switch opts.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(opts.Delimiter) > 0 {
			reader.Comma = rune(opts.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Spreadsheet exports often have ragged rows.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}
