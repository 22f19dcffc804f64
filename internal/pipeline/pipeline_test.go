package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
	"github.com/ginjaninja78/prf-budget-import/internal/report"
	"github.com/ginjaninja78/prf-budget-import/internal/store"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/ginjaninja78/prf-budget-import/internal/workbook"
)

// =============================================================================
// FIXTURES
// =============================================================================

var requestHeader = []any{"PRF No", "Date", "Requested By", "Purpose", "Cost Code", "Amount", "Item", "Qty", "Unit Price"}

var budgetHeader = []any{"Cost Code", "Fiscal Year", "Amount"}

// standardRequests is a title row, a header row and three data rows that
// form PRF-100 (two items) and PRF-101.
func standardRequests() [][]any {
	return [][]any{
		{"Purchase Requests FY2024"},
		requestHeader,
		{"PRF-100", "2024-01-05", "A.Doe", "Laptop", "OPS-01", 1540, "LAPTOP-X", 1, 1500},
		{nil, nil, nil, nil, nil, nil, "MOUSE", 2, 20},
		{"PRF-101", "2024-01-06", "B.Roe", "Paper", "OPS-01", 50, "A4 REAM", 10, 5},
	}
}

// standardBudget holds one valid row, two out-of-range years and an in-file
// duplicate of the first row.
func standardBudget() [][]any {
	return [][]any{
		budgetHeader,
		{"OPS-01", 2024, 50000},
		{"OPS-01", 2019, 100},
		{"OPS-01", 2031, 100},
		{"OPS-01", 2024, 60000},
	}
}

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

func standardUpload(t *testing.T) Input {
	return Input{
		FileName: "prf.xlsx",
		Data: buildXLSX(t, []string{"PRF Data", "Budget"}, map[string][][]any{
			"PRF Data": standardRequests(),
			"Budget":   standardBudget(),
		}),
	}
}

func seededStore() *store.Memory {
	return store.NewMemory(types.ChartOfAccount{Code: "OPS-01", Name: "Operations", Category: "General", Active: true})
}

func newPipeline(t *testing.T, cfg *config.Config, st store.Store) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	p, err := New(cfg, st, zap.NewNop())
	require.NoError(t, err)
	return p
}

func messages(issues []types.Issue) string {
	var b strings.Builder
	for _, is := range issues {
		b.WriteString(is.Message)
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_Workbook(t *testing.T) {
	st := seededStore()
	p := newPipeline(t, nil, st)

	rep, err := p.Import(context.Background(), standardUpload(t))
	require.NoError(t, err)

	assert.True(t, rep.Success)
	assert.Equal(t, report.StateReported, rep.State)
	assert.NotEmpty(t, rep.BatchID)

	t.Run("requests", func(t *testing.T) {
		assert.Equal(t, 2, rep.TotalRecords)
		assert.Equal(t, 2, rep.ImportedRecords)
		assert.Equal(t, 0, rep.InvalidRecords)
		assert.Equal(t, 2, st.RequestCount())

		req, items, ok := st.Request("PRF-100")
		require.True(t, ok)
		assert.Equal(t, "A.Doe", req.Submitter)
		assert.Equal(t, 2024, req.BudgetYear)
		require.Len(t, items, 2)
		assert.Equal(t, "LAPTOP-X", items[0].Name)
		assert.Equal(t, "MOUSE", items[1].Name)
		assert.Equal(t, []int{3, 4}, req.Rows)
	})

	t.Run("budget", func(t *testing.T) {
		require.NotNil(t, rep.Budget)
		assert.Equal(t, 4, rep.Budget.TotalRows)
		assert.Equal(t, 1, rep.Budget.Imported)
		assert.Equal(t, 2, rep.Budget.Invalid)
		assert.Equal(t, 1, rep.Budget.Conflicts)

		allocs := st.Allocations()
		require.Len(t, allocs, 1)
		assert.Equal(t, 2024, allocs[0].FiscalYear)
		assert.Equal(t, "50000", allocs[0].Amount.String())

		errs := messages(rep.Errors)
		assert.Contains(t, errs, "fiscal year 2019 is outside 2020-2030")
		assert.Contains(t, errs, "fiscal year 2031 is outside 2020-2030")
	})

	t.Run("warnings", func(t *testing.T) {
		warns := messages(rep.Warnings)
		assert.Contains(t, warns, "budget year missing, using submit date year 2024")
		assert.Contains(t, warns, "already has a fiscal year 2024 allocation at row 2")
	})
}

func TestImport_Idempotent(t *testing.T) {
	st := seededStore()
	p := newPipeline(t, nil, st)
	opts := types.ImportOptions{SkipDuplicates: true}

	in := standardUpload(t)
	in.Options = &opts

	first, err := p.Import(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ImportedRecords)

	second, err := p.Import(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ImportedRecords)
	assert.Equal(t, 2, second.SkippedRecords)
	assert.Equal(t, 2, st.RequestCount())
	assert.Len(t, st.Allocations(), 1)
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestImport_AccountingHolds(t *testing.T) {
	rows := standardRequests()
	rows = append(rows,
		[]any{"PRF-102", "2024-01-07", nil, "Chairs", "OPS-01", 100, "CHAIR", 1, 100},
		[]any{"PRF-100", "2024-01-05", "A.Doe", "Laptop", "OPS-01", 1540, "LAPTOP-X", 1, 1500},
	)
	in := Input{
		FileName: "prf.xlsx",
		Data:     buildXLSX(t, []string{"PRF Data"}, map[string][][]any{"PRF Data": rows}),
	}

	rep, err := newPipeline(t, nil, seededStore()).Import(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.TotalRecords)
	assert.Equal(t, 2, rep.ImportedRecords)
	assert.Equal(t, 2, rep.InvalidRecords, "missing submitter and the repeated PRF-100 run")
	assert.Equal(t, rep.TotalRecords, rep.ImportedRecords+rep.SkippedRecords+rep.InvalidRecords)
	assert.Nil(t, rep.Budget)
	assert.Contains(t, messages(rep.Warnings), "rows are not contiguous")
}

func TestImport_UnknownCostCode(t *testing.T) {
	rows := [][]any{
		{"Title"},
		requestHeader,
		{"PRF-200", "2024-02-01", "C.Lee", "Toner", "NEW-99", 80, "TONER", 2, 40},
	}

	t.Run("rejected_without_auto_create", func(t *testing.T) {
		st := seededStore()
		in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF"}, map[string][][]any{"PRF": rows})}

		rep, err := newPipeline(t, nil, st).Import(context.Background(), in)
		require.NoError(t, err)

		assert.Equal(t, 0, rep.ImportedRecords)
		assert.Equal(t, 1, rep.InvalidRecords)
		require.Len(t, rep.AggregateDetails.Failed, 1)
		assert.Contains(t, rep.AggregateDetails.Failed[0].Reason, "'NEW-99'")
		assert.Empty(t, rep.CreatedCostCodes)
		_, ok := st.COA("NEW-99")
		assert.False(t, ok)
	})

	t.Run("created_with_auto_create", func(t *testing.T) {
		st := seededStore()
		opts := types.ImportOptions{AutoCreateCOA: true}
		in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF"}, map[string][][]any{"PRF": rows}), Options: &opts}

		rep, err := newPipeline(t, nil, st).Import(context.Background(), in)
		require.NoError(t, err)

		assert.Equal(t, 1, rep.ImportedRecords)
		assert.Equal(t, []string{"NEW-99"}, rep.CreatedCostCodes)
		created, ok := st.COA("NEW-99")
		require.True(t, ok)
		assert.Equal(t, "General", created.Category)
	})
}

func TestImport_SubmitYearOutsideFiscalRange(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{"before_range", "2019-12-15"},
		{"after_range", "2031-01-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := [][]any{
				{"Title"},
				requestHeader,
				{"PRF-200", tt.date, "A.Doe", "Laptop", "OPS-01", 1500, "LAPTOP-X", 1, 1500},
			}
			st := seededStore()
			in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF"}, map[string][][]any{"PRF": rows})}

			rep, err := newPipeline(t, nil, st).Import(context.Background(), in)
			require.NoError(t, err)

			assert.Equal(t, 1, rep.ImportedRecords, messages(rep.Errors))
			assert.Equal(t, 0, rep.InvalidRecords)
			assert.NotContains(t, messages(rep.Errors), "budget year")
			assert.NotContains(t, messages(rep.Warnings), "using submit date year")

			req, _, ok := st.Request("PRF-200")
			require.True(t, ok)
			assert.Equal(t, 0, req.BudgetYear)
		})
	}
}

func TestImport_BlankNumberWithHeaderFieldsIsRejected(t *testing.T) {
	rows := [][]any{
		{"Title"},
		requestHeader,
		{"PRF-100", "2024-01-05", "A.Doe", "Laptop", "OPS-01", 1500, "LAPTOP-X", 1, 1500},
		{nil, "2024-02-01", "B.Roe", "Printer", "OPS-01", 300, "PRINTER", 1, 300},
	}
	st := seededStore()
	in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF"}, map[string][][]any{"PRF": rows})}

	rep, err := newPipeline(t, nil, st).Import(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.TotalRecords)
	assert.Equal(t, 1, rep.ImportedRecords)
	assert.Equal(t, 1, rep.InvalidRecords)
	assert.Contains(t, messages(rep.Errors), "request number required")

	_, items, ok := st.Request("PRF-100")
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "LAPTOP-X", items[0].Name)
}

func TestImport_CostCodeMap(t *testing.T) {
	cfg := config.Default()
	cfg.CostCodeMap = map[string]string{"OPS-1": "OPS-01"}

	rows := [][]any{
		{"Title"},
		requestHeader,
		{"PRF-300", "2024-03-01", "D.Kim", "Pens", "OPS-1", 10, "PEN", 10, 1},
	}
	in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF"}, map[string][][]any{"PRF": rows})}

	rep, err := newPipeline(t, cfg, seededStore()).Import(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ImportedRecords)
	assert.Contains(t, messages(rep.Warnings), "cost code 'OPS-1' remapped to 'OPS-01'")
}

func TestImport_StoreUnavailable(t *testing.T) {
	st := seededStore()
	st.SetFault(func(op, key string) error {
		if op == "ListCOACodes" {
			return errors.New("connection refused")
		}
		return nil
	})

	rep, err := newPipeline(t, nil, st).Import(context.Background(), standardUpload(t))
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.False(t, IsParseError(err))
}

// =============================================================================
// VALIDATE
// =============================================================================

func TestValidate_WritesNothing(t *testing.T) {
	st := store.NewMemory()
	p := newPipeline(t, nil, st)

	rep, err := p.Validate(context.Background(), standardUpload(t))
	require.NoError(t, err)

	assert.True(t, rep.Success)
	assert.Equal(t, report.StateValidated, rep.State)
	assert.Equal(t, 2, rep.RequestValidation.ValidCount)
	assert.Equal(t, 0, rep.RequestValidation.InvalidCount)
	require.NotNil(t, rep.BudgetValidation)
	assert.Equal(t, 2, rep.BudgetValidation.InvalidCount)
	assert.Contains(t, messages(rep.RequestValidation.Warnings), "cost code 'OPS-01' not found in chart of accounts")

	assert.Zero(t, st.RequestCount())
	assert.Empty(t, st.Allocations())
}

// =============================================================================
// PARSING
// =============================================================================

func TestImport_ParseFatal(t *testing.T) {
	p := newPipeline(t, nil, seededStore())

	tests := []struct {
		name  string
		in    Input
		stage string
	}{
		{
			name:  "empty_file",
			in:    Input{FileName: "prf.xlsx"},
			stage: StageRead,
		},
		{
			name: "missing_named_sheet",
			in: Input{
				FileName:     "prf.xlsx",
				Data:         buildXLSX(t, []string{"PRF Data"}, map[string][][]any{"PRF Data": standardRequests()}),
				RequestSheet: "Requests 2023",
			},
			stage: StageResolve,
		},
		{
			name: "no_request_number_column",
			in: Input{
				FileName: "prf.xlsx",
				Data: buildXLSX(t, []string{"PRF Data"}, map[string][][]any{
					"PRF Data": {{"Item", "Qty"}, {"PEN", 1}},
				}),
			},
			stage: StageProject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := p.Import(context.Background(), tt.in)
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.stage, pe.Stage)

			require.NotNil(t, rep)
			assert.False(t, rep.Success)
			assert.Equal(t, report.StateRejectedAtParse, rep.State)
			assert.NotEmpty(t, rep.Error)
		})
	}

	t.Run("unreadable_wraps_workbook_error", func(t *testing.T) {
		_, err := p.Import(context.Background(), Input{FileName: "prf.xlsx"})
		assert.ErrorIs(t, err, workbook.ErrUnreadableWorkbook)
	})
}

func TestImport_HeaderScan(t *testing.T) {
	// No title row: the configured header row holds data, so the header is
	// found by scanning.
	rows := standardRequests()[1:]
	in := Input{FileName: "prf.xlsx", Data: buildXLSX(t, []string{"PRF Data"}, map[string][][]any{"PRF Data": rows})}

	rep, err := newPipeline(t, nil, seededStore()).Import(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.ImportedRecords)
	assert.Equal(t, 3, rep.TotalRows)
}

func TestImport_CSV(t *testing.T) {
	data := "PRF No,Date,Requested By,Purpose,Cost Code,Amount,Item,Qty,Unit Price\n" +
		"PRF-400,2024-04-01,E.Ng,Cables,OPS-01,30,HDMI,3,10\n"

	rep, err := newPipeline(t, nil, seededStore()).Import(context.Background(), Input{FileName: "prf.csv", Data: []byte(data)})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ImportedRecords)
}

func TestImport_BudgetSheetWithoutHeaderIsIgnored(t *testing.T) {
	in := Input{
		FileName: "prf.xlsx",
		Data: buildXLSX(t, []string{"PRF Data", "Budget Notes"}, map[string][][]any{
			"PRF Data":     standardRequests(),
			"Budget Notes": {{"Remember to file Q3 numbers"}},
		}),
	}

	rep, err := newPipeline(t, nil, seededStore()).Import(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.ImportedRecords)
	assert.Nil(t, rep.Budget)
}

func TestListSheets(t *testing.T) {
	p := newPipeline(t, nil, seededStore())

	names, err := p.ListSheets("prf.xlsx", standardUpload(t).Data)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRF Data", "Budget"}, names)

	_, err = p.ListSheets("prf.xlsx", []byte("not a zip"))
	assert.True(t, IsParseError(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Import.AmountTolerance = "a penny"
	_, err := New(cfg, seededStore(), nil)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.TransformationRules = []config.TransformationRule{{Field: "submitter", Actions: []config.TransformationAction{{Type: "shout"}}}}
	_, err = New(cfg, seededStore(), nil)
	assert.Error(t, err)
}
