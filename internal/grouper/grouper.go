// =============================================================================
// PRF Budget Import - Request Grouper
// =============================================================================
//
// This module folds projected request rows into purchase-request aggregates.
//
// GROUPING RULES:
//   - Grouping is by contiguous run. A row whose request number differs from
//     the open aggregate starts a new one; the same number appearing again
//     later in the sheet starts another aggregate.
//   - A row with a blank request number continues the open aggregate when it
//     carries only item columns. A blank-number row with its own header
//     fields (submit date, submitter, description, requested amount) is a
//     separate request missing its number: it opens an aggregate with an
//     empty number, which the validator rejects. The same happens when
//     there is no open aggregate.
//   - The first row of a run supplies the header fields.
//   - Every row of a run, the first included, adds one item line when it
//     carries an item name, a quantity or a unit price.
//
// =============================================================================

package grouper

import (
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// Group folds rows into aggregates in first-seen order.
//
// PARAMETERS:
//   - rows: Projected request rows in sheet order.
//
// RETURNS:
//   - One aggregate per contiguous run.
func Group(rows []types.RawRow) []types.RequestAggregate {
	aggs := make([]types.RequestAggregate, 0)
	for _, row := range rows {
		number := row.Text(types.FieldRequestNumber)
		if n := len(aggs); n > 0 && continuesRun(&aggs[n-1], number, row) {
			aggs[n-1] = appendRow(aggs[n-1], row)
			continue
		}
		aggs = append(aggs, appendRow(openAggregate(row, number), row))
	}
	return aggs
}

// headerFields are the columns that only the first row of a request fills.
var headerFields = []string{
	types.FieldSubmitDate,
	types.FieldSubmitter,
	types.FieldDescription,
	types.FieldRequestedAmount,
}

// continuesRun reports whether a row with the given number belongs to the
// open aggregate.
func continuesRun(open *types.RequestAggregate, number string, row types.RawRow) bool {
	if number != "" {
		return number == open.RequestNumber
	}
	return !hasHeaderFields(row)
}

func hasHeaderFields(row types.RawRow) bool {
	for _, field := range headerFields {
		if row.Has(field) {
			return true
		}
	}
	return false
}

// openAggregate starts an aggregate from the header fields of its first row.
func openAggregate(row types.RawRow, number string) types.RequestAggregate {
	return types.RequestAggregate{
		RequestNumber:   number,
		SubmitDate:      row.Get(types.FieldSubmitDate),
		Submitter:       row.Text(types.FieldSubmitter),
		Department:      row.Text(types.FieldDepartment),
		Description:     row.Text(types.FieldDescription),
		CostCode:        row.Text(types.FieldPurchaseCostCode),
		RequestedAmount: row.Get(types.FieldRequestedAmount),
		BudgetYear:      row.Get(types.FieldBudgetYear),
	}
}

// appendRow records the row and its item line, if any.
func appendRow(agg types.RequestAggregate, row types.RawRow) types.RequestAggregate {
	agg.Rows = append(agg.Rows, row.RowNumber)
	if line, ok := itemLine(row); ok {
		agg.Items = append(agg.Items, line)
	}
	return agg
}

// itemLine extracts the item-shaped columns of a row.
func itemLine(row types.RawRow) (types.RequestItemLine, bool) {
	if !row.Has(types.FieldItemName) && !row.Has(types.FieldQuantity) && !row.Has(types.FieldUnitPrice) {
		return types.RequestItemLine{}, false
	}
	return types.RequestItemLine{
		RowNumber:   row.RowNumber,
		Name:        row.Text(types.FieldItemName),
		Description: row.Text(types.FieldItemDescription),
		Quantity:    row.Get(types.FieldQuantity),
		UnitPrice:   row.Get(types.FieldUnitPrice),
		TotalPrice:  row.Get(types.FieldTotalPrice),
	}, true
}

// BudgetRows shapes projected budget rows. Budget rows are independent of
// each other; there is no grouping.
func BudgetRows(rows []types.RawRow) []types.BudgetAllocationRow {
	out := make([]types.BudgetAllocationRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.BudgetAllocationRow{
			RowNumber:       row.RowNumber,
			CostCode:        row.Text(types.FieldCostCode),
			FiscalYear:      row.Get(types.FieldFiscalYear),
			AllocatedAmount: row.Get(types.FieldAllocatedAmount),
			Description:     row.Text(types.FieldDescription),
		})
	}
	return out
}
