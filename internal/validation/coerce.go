package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// =============================================================================
// VALUE COERCION
// =============================================================================
//
// These helpers turn untyped cells into Go values. They are exported because
// the reconciliation fixers read dates and years the same way the validator
// does.
//
// =============================================================================

// ErrMissing is returned when a cell is blank.
var ErrMissing = errors.New("value is missing")

const (
	// Excel's 1900 date system: serial 1 is 1900-01-01 and the largest
	// valid serial is 9999-12-31.
	minExcelSerial = 1
	maxExcelSerial = 2958465

	// Serial 60 is 1900-02-29, a day that never existed. Excel counts it,
	// so every serial from 61 on is one day ahead of a plain day count.
	excelLeapBugSerial = 60
)

var (
	excelEpoch          = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	excelEpochBeforeBug = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
)

// dateLayouts are tried in order for text dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate reads a calendar date from a cell.
//
// Accepted forms:
//   - Date cells
//   - Number cells and numeric text, read as Excel serial dates
//   - Text in any of dateLayouts
//
// RETURNS:
//   - The date at midnight UTC.
//   - ErrMissing for blank cells, or a descriptive error.
func ParseDate(v types.CellValue) (time.Time, error) {
	switch c := v.(type) {
	case nil, types.Empty:
		return time.Time{}, ErrMissing
	case types.Date:
		return truncateDay(c.Time), nil
	case types.Number:
		return ExcelSerialToTime(float64(c))
	case types.Text:
		s := strings.TrimSpace(string(c))
		if s == "" {
			return time.Time{}, ErrMissing
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ExcelSerialToTime(f)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDay(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("'%s' is not a recognised date", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported cell %T", v)
	}
}

// ExcelSerialToTime converts a 1900-system serial date. The fractional
// time-of-day part is dropped.
func ExcelSerialToTime(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || serial < minExcelSerial || serial >= maxExcelSerial+1 {
		return time.Time{}, fmt.Errorf("serial date %v is out of range", serial)
	}
	days := int(math.Floor(serial))
	switch {
	case days == excelLeapBugSerial:
		return time.Time{}, errors.New("serial date 60 (1900-02-29) is not a calendar date")
	case days < excelLeapBugSerial:
		return excelEpochBeforeBug.AddDate(0, 0, days), nil
	default:
		return excelEpoch.AddDate(0, 0, days), nil
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDecimal reads a money or quantity value.
//
// Text may carry thousands separators, surrounding whitespace, a currency
// symbol ("₱", "$", "PHP") and accounting-style parentheses for negatives.
func ParseDecimal(v types.CellValue) (decimal.Decimal, error) {
	switch c := v.(type) {
	case nil, types.Empty:
		return decimal.Zero, ErrMissing
	case types.Number:
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, fmt.Errorf("'%s' is not a number", c.String())
		}
		return decimal.NewFromFloat(f), nil
	case types.Text:
		s := cleanNumber(string(c))
		if s == "" {
			return decimal.Zero, ErrMissing
		}
		negative := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = true
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("'%s' is not a number", strings.TrimSpace(string(c)))
		}
		if negative {
			d = d.Neg()
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("'%s' is not a number", v.String())
	}
}

// cleanNumber strips currency markers, separators and whitespace.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, prefix := range []string{"PHP", "USD"} {
		if strings.HasPrefix(upper, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	replacer := strings.NewReplacer("₱", "", "$", "", ",", "", " ", "", "\u00a0", "")
	return replacer.Replace(strings.TrimSpace(s))
}

// ParseYear reads a four-digit year. "FY2024" and "FY 2024" are accepted.
func ParseYear(v types.CellValue) (int, error) {
	switch c := v.(type) {
	case nil, types.Empty:
		return 0, ErrMissing
	case types.Number:
		f := float64(c)
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("'%s' is not a whole year", c.String())
		}
		return int(f), nil
	case types.Date:
		return 0, fmt.Errorf("'%s' is a date, not a year", c.String())
	case types.Text:
		s := strings.TrimSpace(string(c))
		if s == "" {
			return 0, ErrMissing
		}
		if len(s) > 2 && strings.EqualFold(s[:2], "fy") {
			s = strings.TrimSpace(s[2:])
		}
		year, err := strconv.Atoi(s)
		if err != nil {
			if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == math.Trunc(f) {
				return int(f), nil
			}
			return 0, fmt.Errorf("'%s' is not a year", strings.TrimSpace(string(c)))
		}
		return year, nil
	default:
		return 0, fmt.Errorf("'%s' is not a year", v.String())
	}
}
