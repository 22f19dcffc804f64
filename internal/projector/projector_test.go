package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

func textRow(values ...string) []types.CellValue {
	row := make([]types.CellValue, len(values))
	for i, v := range values {
		if v == "" {
			row[i] = types.Empty{}
		} else {
			row[i] = types.Text(v)
		}
	}
	return row
}

func TestProject_RequestSheet(t *testing.T) {
	rows := [][]types.CellValue{
		textRow("Purchase Request Register", "", "", "", ""),
		textRow("PRF No.", "Requested By", "", "Qty", "Remarks"),
		textRow("PRF-1", "A.Doe", "ignored", "2", "rush"),
		textRow("", "", "", "", ""),
		{types.Text("PRF-2"), types.Empty{}, types.Empty{}, types.Number(3), types.Empty{}},
	}

	p, err := Project(rows, 1, RequestDictionary(nil))
	require.NoError(t, err)

	assert.Equal(t, 2, p.HeaderRow)
	require.Len(t, p.Rows, 2)

	t.Run("row_numbers_are_one_based_sheet_rows", func(t *testing.T) {
		assert.Equal(t, 3, p.Rows[0].RowNumber)
		assert.Equal(t, 5, p.Rows[1].RowNumber)
	})

	t.Run("known_headers_map_to_canonical_fields", func(t *testing.T) {
		assert.Equal(t, "PRF-1", p.Rows[0].Text(types.FieldRequestNumber))
		assert.Equal(t, "A.Doe", p.Rows[0].Text(types.FieldSubmitter))
		assert.Equal(t, types.Number(3), p.Rows[1].Get(types.FieldQuantity))
	})

	t.Run("empty_header_contributes_no_field", func(t *testing.T) {
		assert.Len(t, p.Rows[0].Fields, 4)
		for _, v := range p.Rows[0].Fields {
			assert.NotEqual(t, types.Text("ignored"), v)
		}
	})

	t.Run("unknown_headers_are_kept", func(t *testing.T) {
		assert.Equal(t, []string{"Remarks"}, p.UnknownHeaders())
		assert.Equal(t, "rush", p.Rows[0].Text("Remarks"))
	})

	t.Run("blank_cells_stay_empty", func(t *testing.T) {
		assert.False(t, p.Rows[1].Has(types.FieldSubmitter))
		assert.Equal(t, types.Empty{}, p.Rows[1].Get(types.FieldSubmitter))
	})
}

func TestProject_DuplicateHeaderFirstWins(t *testing.T) {
	rows := [][]types.CellValue{
		textRow("Cost Code", "Account Code", "FY", "Amount"),
		textRow("OPS-01", "OPS-99", "2024", "1000"),
	}

	p, err := Project(rows, 0, BudgetDictionary(nil))
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)

	assert.Equal(t, "OPS-01", p.Rows[0].Text(types.FieldCostCode))
	assert.Equal(t, "2024", p.Rows[0].Text(types.FieldFiscalYear))
	assert.Equal(t, "1000", p.Rows[0].Text(types.FieldAllocatedAmount))
	assert.Len(t, p.Columns, 3)
}

func TestProject_HeaderRowOutOfRange(t *testing.T) {
	_, err := Project([][]types.CellValue{textRow("a")}, 1, RequestDictionary(nil))
	assert.ErrorIs(t, err, ErrHeaderRowOutOfRange)

	_, err = Project(nil, 0, RequestDictionary(nil))
	assert.ErrorIs(t, err, ErrHeaderRowOutOfRange)
}

func TestDictionary(t *testing.T) {
	req := RequestDictionary(map[string][]string{
		types.FieldRequestNumber: {"Control #"},
		types.FieldFiscalYear:    {"ignored for request sheet"},
	})

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"PRF No.", types.FieldRequestNumber, true},
		{"  prf   number ", types.FieldRequestNumber, true},
		{"REQUEST_NUMBER", types.FieldRequestNumber, true},
		{"Control #", types.FieldRequestNumber, true},
		{"Cost Code", types.FieldPurchaseCostCode, true},
		{"Amount", types.FieldRequestedAmount, true},
		{"Unit Price", types.FieldUnitPrice, true},
		{"ignored for request sheet", "", false},
		{"Signature", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := req.Canonical(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	budget := BudgetDictionary(nil)
	got, ok := budget.Canonical("Cost Code")
	assert.True(t, ok)
	assert.Equal(t, types.FieldCostCode, got)

	got, ok = budget.Canonical("Amount")
	assert.True(t, ok)
	assert.Equal(t, types.FieldAllocatedAmount, got)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "prf no", normalizeHeader(" PRF-No. "))
	assert.Equal(t, "unit price", normalizeHeader("Unit_Price"))
	assert.Equal(t, "", normalizeHeader("#"))
}
