package reconcile

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/ginjaninja78/prf-budget-import/internal/validation"
)

// The fixers below are pure: they return new slices and a warning for every
// record they change or flag. The inputs are never modified.

// RemapCostCodes rewrites retired or duplicate cost codes to their canonical
// code on both aggregates and budget rows.
//
// PARAMETERS:
//   - mapping: old code -> canonical code. Keys match exactly after trimming.
func RemapCostCodes(aggs []types.RequestAggregate, rows []types.BudgetAllocationRow, mapping map[string]string) ([]types.RequestAggregate, []types.BudgetAllocationRow, []types.Issue) {
	if len(mapping) == 0 {
		return aggs, rows, nil
	}

	var warnings []types.Issue

	outAggs := make([]types.RequestAggregate, len(aggs))
	for i, agg := range aggs {
		if to, ok := remap(mapping, agg.CostCode); ok {
			warnings = append(warnings, remapWarning(agg.FirstRow(), types.FieldPurchaseCostCode, agg.RequestNumber, agg.CostCode, to))
			agg.CostCode = to
		}
		outAggs[i] = agg
	}

	outRows := make([]types.BudgetAllocationRow, len(rows))
	for i, row := range rows {
		if to, ok := remap(mapping, row.CostCode); ok {
			warnings = append(warnings, remapWarning(row.RowNumber, types.FieldCostCode, "", row.CostCode, to))
			row.CostCode = to
		}
		outRows[i] = row
	}

	return outAggs, outRows, warnings
}

func remap(mapping map[string]string, code string) (string, bool) {
	if code == "" {
		return "", false
	}
	to, ok := mapping[strings.TrimSpace(code)]
	if !ok || to == "" || to == code {
		return "", false
	}
	return to, true
}

func remapWarning(row int, field, requestNumber, from, to string) types.Issue {
	return types.Issue{
		Severity:      types.SeverityWarning,
		Row:           row,
		Field:         field,
		Message:       fmt.Sprintf("cost code '%s' remapped to '%s'", from, to),
		RequestNumber: requestNumber,
		Rule:          "remap",
		Value:         from,
	}
}

// DeriveBudgetYear fills a missing budget year from the submit date when
// that year lies within minYear..maxYear. Aggregates whose submit date is
// missing, unparseable or outside the range keep an absent budget year.
func DeriveBudgetYear(aggs []types.RequestAggregate, minYear, maxYear int) ([]types.RequestAggregate, []types.Issue) {
	var warnings []types.Issue

	out := make([]types.RequestAggregate, len(aggs))
	for i, agg := range aggs {
		if types.IsBlank(agg.BudgetYear) {
			date, err := validation.ParseDate(agg.SubmitDate)
			if err == nil && date.Year() >= minYear && date.Year() <= maxYear {
				agg.BudgetYear = types.Number(date.Year())
				warnings = append(warnings, types.Issue{
					Severity:      types.SeverityWarning,
					Row:           agg.FirstRow(),
					Field:         types.FieldBudgetYear,
					Message:       fmt.Sprintf("budget year missing, using submit date year %d", date.Year()),
					RequestNumber: agg.RequestNumber,
					Rule:          "derived",
				})
			}
		}
		out[i] = agg
	}
	return out, warnings
}

// DetectAllocationConflicts flags budget rows that repeat a (cost code,
// fiscal year) pair seen earlier in the same file. Only the later row is
// flagged. Rows without a code or a readable year are skipped.
func DetectAllocationConflicts(rows []types.BudgetAllocationRow) []types.Issue {
	type pair struct {
		code string
		year int
	}

	var warnings []types.Issue
	first := make(map[pair]int)
	for _, row := range rows {
		if row.CostCode == "" {
			continue
		}
		year, err := validation.ParseYear(row.FiscalYear)
		if err != nil {
			continue
		}

		key := pair{row.CostCode, year}
		if at, seen := first[key]; seen {
			warnings = append(warnings, types.Issue{
				Severity: types.SeverityWarning,
				Row:      row.RowNumber,
				Field:    types.FieldFiscalYear,
				Message: fmt.Sprintf("cost code '%s' already has a fiscal year %d allocation at row %d",
					row.CostCode, year, at),
				Rule:  "duplicate_allocation",
				Value: fmt.Sprint(year),
			})
			continue
		}
		first[key] = row.RowNumber
	}
	return warnings
}
