package types

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CELL VALUES
// =============================================================================

// CellKind identifies which variant a CellValue holds.
type CellKind int

const (
	KindEmpty CellKind = iota
	KindText
	KindNumber
	KindDate
)

func (k CellKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "empty"
	}
}

// CellValue is a single spreadsheet cell. It is a closed set of variants:
// Text, Number, Date and Empty. Callers switch on the concrete type (or on
// Kind) instead of coercing values implicitly.
type CellValue interface {
	Kind() CellKind
	// String renders the value the way it would appear in an error message.
	String() string
	isCell()
}

// Text is a string cell. Surrounding whitespace is preserved; use
// CellText to read a trimmed value.
type Text string

// Number is a numeric cell. Spreadsheet date cells stored as serial numbers
// arrive as Number and are interpreted by the validator.
type Number float64

// Date is a cell the workbook itself typed as a date.
type Date struct{ time.Time }

// Empty marks a blank cell, or a column the row does not reach.
type Empty struct{}

func (Text) Kind() CellKind   { return KindText }
func (Number) Kind() CellKind { return KindNumber }
func (Date) Kind() CellKind   { return KindDate }
func (Empty) Kind() CellKind  { return KindEmpty }

func (t Text) String() string { return string(t) }

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

func (d Date) String() string { return d.Format("2006-01-02") }

func (Empty) String() string { return "" }

func (Text) isCell()   {}
func (Number) isCell() {}
func (Date) isCell()   {}
func (Empty) isCell()  {}

// IsBlank reports whether a cell carries no usable content: Empty, or Text
// that is only whitespace. A nil CellValue is treated as Empty.
func IsBlank(v CellValue) bool {
	switch c := v.(type) {
	case nil, Empty:
		return true
	case Text:
		return strings.TrimSpace(string(c)) == ""
	default:
		return false
	}
}

// CellText returns the trimmed textual form of any cell.
func CellText(v CellValue) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.String())
}
