package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

func TestTransformer_Actions(t *testing.T) {
	tests := []struct {
		name   string
		action config.TransformationAction
		input  string
		want   string
	}{
		{"trim", config.TransformationAction{Type: "trim"}, "  OPS-01 ", "OPS-01"},
		{"uppercase", config.TransformationAction{Type: "uppercase"}, "ops-01", "OPS-01"},
		{"lowercase", config.TransformationAction{Type: "lowercase"}, "A.DOE", "a.doe"},
		{"prepend", config.TransformationAction{Type: "prepend_string", Value: "PRF-"}, "100", "PRF-100"},
		{"append", config.TransformationAction{Type: "append_string", Value: "-A"}, "100", "100-A"},
		{"pad", config.TransformationAction{Type: "pad_zeros_to_length", Value: "6"}, "417", "000417"},
		{"pad longer", config.TransformationAction{Type: "pad_zeros_to_length", Value: "2"}, "417", "417"},
		{"replace", config.TransformationAction{Type: "replace", Find: "_", Value: "-"}, "OPS_01", "OPS-01"},
		{"regex", config.TransformationAction{Type: "regex_replace", Find: `\s*/\s*`, Value: "-"}, "PRF 2024 / 17", "PRF 2024-17"},
		{"lookup hit", config.TransformationAction{Type: "lookup", LookupTable: map[string]string{"IT": "Information Technology"}}, "IT", "Information Technology"},
		{"lookup miss", config.TransformationAction{Type: "lookup", LookupTable: map[string]string{"IT": "x"}}, "HR", "HR"},
		{"lookup default", config.TransformationAction{Type: "lookup_with_default", Value: "Other", LookupTable: map[string]string{}}, "HR", "Other"},
		{"leading zeros", config.TransformationAction{Type: "remove_leading_zeros"}, "000", "0"},
		{"digits", config.TransformationAction{Type: "extract_digits"}, "PRF-2024-07", "202407"},
		{"whitespace", config.TransformationAction{Type: "normalize_whitespace"}, " A   B\tC ", "A B C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransformer([]config.TransformationRule{{Field: "f", Actions: []config.TransformationAction{tt.action}}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Transform("f", tt.input))
		})
	}
}

func TestNewTransformer_Invalid(t *testing.T) {
	bad := []config.TransformationAction{
		{Type: "explode"},
		{Type: "regex_replace", Find: "("},
		{Type: "regex_replace"},
		{Type: "pad_zeros_to_length", Value: "x"},
	}
	for _, a := range bad {
		_, err := NewTransformer([]config.TransformationRule{{Field: "cost", Actions: []config.TransformationAction{a}}})
		assert.Error(t, err, a.Type)
	}
}

func TestTransformer_ApplyTextOnly(t *testing.T) {
	tr, err := NewTransformer([]config.TransformationRule{
		{Field: types.FieldPurchaseCostCode, Actions: []config.TransformationAction{{Type: "trim"}, {Type: "uppercase"}}},
		{Field: types.FieldQuantity, Actions: []config.TransformationAction{{Type: "prepend_string", Value: "x"}}},
		{Field: types.FieldDepartment, Actions: []config.TransformationAction{{Type: "replace", Find: "n/a", Value: ""}}},
	})
	require.NoError(t, err)

	in := []types.RawRow{{
		RowNumber: 3,
		Fields: map[string]types.CellValue{
			types.FieldPurchaseCostCode: types.Text(" ops-01 "),
			types.FieldQuantity:         types.Number(2),
			types.FieldDepartment:       types.Text("n/a"),
			types.FieldSubmitter:        types.Text(" A.Doe "),
		},
	}}

	out := tr.Apply(in)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].RowNumber)
	assert.Equal(t, types.Text("OPS-01"), out[0].Fields[types.FieldPurchaseCostCode])
	assert.Equal(t, types.Number(2), out[0].Fields[types.FieldQuantity])
	assert.Equal(t, types.Empty{}, out[0].Fields[types.FieldDepartment])
	assert.Equal(t, types.Text(" A.Doe "), out[0].Fields[types.FieldSubmitter])

	// input untouched
	assert.Equal(t, types.Text(" ops-01 "), in[0].Fields[types.FieldPurchaseCostCode])
}

func TestTransformer_NoRules(t *testing.T) {
	tr, err := NewTransformer(nil)
	require.NoError(t, err)
	assert.True(t, tr.Empty())

	rows := []types.RawRow{{RowNumber: 1}}
	assert.Equal(t, rows, tr.Apply(rows))
}

func TestRemapCostCodes(t *testing.T) {
	aggs := []types.RequestAggregate{
		{RequestNumber: "PRF-1", CostCode: "OLD-1", Rows: []int{3}},
		{RequestNumber: "PRF-2", CostCode: "OPS-01", Rows: []int{4}},
		{RequestNumber: "PRF-3", Rows: []int{5}},
	}
	rows := []types.BudgetAllocationRow{
		{RowNumber: 2, CostCode: "OLD-1"},
		{RowNumber: 3, CostCode: "FIN-02"},
	}

	outAggs, outRows, warnings := RemapCostCodes(aggs, rows, map[string]string{"OLD-1": "OPS-01"})

	assert.Equal(t, "OPS-01", outAggs[0].CostCode)
	assert.Equal(t, "OPS-01", outAggs[1].CostCode)
	assert.Equal(t, "", outAggs[2].CostCode)
	assert.Equal(t, "OPS-01", outRows[0].CostCode)
	assert.Equal(t, "FIN-02", outRows[1].CostCode)
	assert.Equal(t, "OLD-1", aggs[0].CostCode, "input untouched")

	require.Len(t, warnings, 2)
	assert.Equal(t, 3, warnings[0].Row)
	assert.Equal(t, "PRF-1", warnings[0].RequestNumber)
	assert.Equal(t, "cost code 'OLD-1' remapped to 'OPS-01'", warnings[0].Message)
	assert.Equal(t, types.FieldCostCode, warnings[1].Field)
	assert.False(t, warnings[1].IsError())
}

func TestRemapCostCodes_NoMapping(t *testing.T) {
	aggs := []types.RequestAggregate{{CostCode: "A"}}
	outAggs, _, warnings := RemapCostCodes(aggs, nil, nil)
	assert.Equal(t, aggs, outAggs)
	assert.Empty(t, warnings)
}

func TestDeriveBudgetYear(t *testing.T) {
	aggs := []types.RequestAggregate{
		{RequestNumber: "PRF-1", SubmitDate: types.Text("2024-01-05"), Rows: []int{3}},
		{RequestNumber: "PRF-2", SubmitDate: types.Text("2024-01-05"), BudgetYear: types.Number(2025), Rows: []int{4}},
		{RequestNumber: "PRF-3", SubmitDate: types.Empty{}, Rows: []int{5}},
		{RequestNumber: "PRF-4", SubmitDate: types.Number(45658), Rows: []int{6}},
		{RequestNumber: "PRF-5", SubmitDate: types.Text("2019-12-15"), Rows: []int{7}},
	}

	out, warnings := DeriveBudgetYear(aggs, 2020, 2030)

	assert.Equal(t, types.Number(2024), out[0].BudgetYear)
	assert.Equal(t, types.Number(2025), out[1].BudgetYear)
	assert.Nil(t, out[2].BudgetYear)
	assert.Equal(t, types.Number(2025), out[3].BudgetYear)
	assert.Nil(t, out[4].BudgetYear, "submit year outside the fiscal range is not used")

	require.Len(t, warnings, 2)
	assert.Equal(t, "budget year missing, using submit date year 2024", warnings[0].Message)
	assert.Equal(t, "PRF-4", warnings[1].RequestNumber)
}

func TestDetectAllocationConflicts(t *testing.T) {
	rows := []types.BudgetAllocationRow{
		{RowNumber: 2, CostCode: "OPS-01", FiscalYear: types.Number(2024)},
		{RowNumber: 3, CostCode: "OPS-01", FiscalYear: types.Number(2025)},
		{RowNumber: 4, CostCode: "OPS-01", FiscalYear: types.Text("FY2024")},
		{RowNumber: 5, CostCode: "", FiscalYear: types.Number(2024)},
		{RowNumber: 6, CostCode: "FIN-02", FiscalYear: types.Text("soon")},
	}

	warnings := DetectAllocationConflicts(rows)
	require.Len(t, warnings, 1)
	assert.Equal(t, 4, warnings[0].Row)
	assert.Equal(t, types.FieldFiscalYear, warnings[0].Field)
	assert.Contains(t, warnings[0].Message, "at row 2")
}
