package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		cell types.CellValue
		want time.Time
	}{
		{"iso_text", types.Text("2024-01-05"), day(2024, 1, 5)},
		{"rfc3339", types.Text("2024-01-05T13:45:00Z"), day(2024, 1, 5)},
		{"us_slashes", types.Text("01/05/2024"), day(2024, 1, 5)},
		{"dd_mon_yyyy", types.Text("05-Jan-2024"), day(2024, 1, 5)},
		{"serial_number", types.Number(45296), day(2024, 1, 5)},
		{"serial_with_time_of_day", types.Number(45296.75), day(2024, 1, 5)},
		{"serial_text", types.Text("45296"), day(2024, 1, 5)},
		{"date_cell", types.Date{Time: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)}, day(2024, 1, 5)},
		{"first_serial", types.Number(1), day(1900, 1, 1)},
		{"before_leap_bug", types.Number(59), day(1900, 2, 28)},
		{"after_leap_bug", types.Number(61), day(1900, 3, 1)},
		{"last_serial", types.Number(2958465), day(9999, 12, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.cell)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_Errors(t *testing.T) {
	_, err := ParseDate(types.Empty{})
	assert.ErrorIs(t, err, ErrMissing)

	_, err = ParseDate(types.Text("   "))
	assert.ErrorIs(t, err, ErrMissing)

	for _, cell := range []types.CellValue{
		types.Text("next tuesday"),
		types.Number(0),
		types.Number(60),
		types.Number(2958466),
		types.Text("2024-02-30"),
	} {
		_, err := ParseDate(cell)
		assert.Error(t, err, "cell %v", cell)
		assert.NotErrorIs(t, err, ErrMissing)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		cell types.CellValue
		want string
	}{
		{types.Number(1500.5), "1500.5"},
		{types.Text("1,500.50"), "1500.5"},
		{types.Text("₱1,234"), "1234"},
		{types.Text("PHP 99.95"), "99.95"},
		{types.Text("$ 10"), "10"},
		{types.Text("(250.00)"), "-250"},
		{types.Text(" 7 "), "7"},
	}
	for _, tt := range tests {
		t.Run(tt.cell.String(), func(t *testing.T) {
			got, err := ParseDecimal(tt.cell)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}

	_, err := ParseDecimal(types.Empty{})
	assert.ErrorIs(t, err, ErrMissing)

	_, err = ParseDecimal(types.Text("twelve"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "'twelve'")
}

func TestParseYear(t *testing.T) {
	for cell, want := range map[types.CellValue]int{
		types.Number(2024):    2024,
		types.Text("2025"):    2025,
		types.Text("FY 2026"): 2026,
		types.Text("fy2027"):  2027,
		types.Text("2028.0"):  2028,
	} {
		got, err := ParseYear(cell)
		require.NoError(t, err, "cell %v", cell)
		assert.Equal(t, want, got)
	}

	_, err := ParseYear(types.Number(2024.5))
	assert.Error(t, err)

	_, err = ParseYear(types.Text("next year"))
	assert.Error(t, err)

	_, err = ParseYear(types.Empty{})
	assert.ErrorIs(t, err, ErrMissing)
}
