package validation

import (
	"fmt"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// Batch is the validation outcome for a whole upload. Requests and Budget
// are index-aligned with the aggregates and budget rows that were checked.
type Batch struct {
	Requests []RequestResult
	Budget   []BudgetResult

	RequestValid   int
	RequestInvalid int
	BudgetValid    int
	BudgetInvalid  int
}

// ValidateBatch validates every aggregate and budget row of an upload.
//
// Besides the per-record rules it warns when a request number shows up in
// more than one run of the sheet. Each run remains its own aggregate.
func (v *Validator) ValidateBatch(aggs []types.RequestAggregate, rows []types.BudgetAllocationRow, codes CodeDirectory) *Batch {
	b := &Batch{
		Requests: make([]RequestResult, len(aggs)),
		Budget:   make([]BudgetResult, len(rows)),
	}

	firstRun := make(map[string]int)
	for i, agg := range aggs {
		res := v.ValidateRequest(agg, codes)

		if agg.RequestNumber != "" {
			if first, seen := firstRun[agg.RequestNumber]; seen {
				res.Issues = append(res.Issues, types.Issue{
					Severity:      types.SeverityWarning,
					Row:           agg.FirstRow(),
					Field:         types.FieldRequestNumber,
					Message:       fmt.Sprintf("request number '%s' also appears at row %d; rows are not contiguous", agg.RequestNumber, first),
					RequestNumber: agg.RequestNumber,
					Rule:          "duplicate_run",
					Value:         agg.RequestNumber,
				})
			} else {
				firstRun[agg.RequestNumber] = agg.FirstRow()
			}
		}

		b.Requests[i] = res
		if res.Valid() {
			b.RequestValid++
		} else {
			b.RequestInvalid++
		}
	}

	for i, row := range rows {
		res := v.ValidateBudgetRow(row, codes)
		b.Budget[i] = res
		if res.Valid() {
			b.BudgetValid++
		} else {
			b.BudgetInvalid++
		}
	}
	return b
}

// RequestIssues returns every request issue split by severity, in
// aggregate order.
func (b *Batch) RequestIssues() (errs, warnings []types.Issue) {
	var all []types.Issue
	for _, r := range b.Requests {
		all = append(all, r.Issues...)
	}
	return types.SplitIssues(all)
}

// BudgetIssues returns every budget issue split by severity, in row order.
func (b *Batch) BudgetIssues() (errs, warnings []types.Issue) {
	var all []types.Issue
	for _, r := range b.Budget {
		all = append(all, r.Issues...)
	}
	return types.SplitIssues(all)
}
