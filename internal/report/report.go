// =============================================================================
// PRF Budget Import - Report Builder
// =============================================================================
//
// This module accumulates validation and import outcomes into the single
// serializable result handed to the CLI and HTTP layers.
//
// ACCOUNTING:
//   totalRecords counts aggregates. Every aggregate ends up in exactly one
//   bucket: imported (created or updated), skipped (duplicate) or invalid
//   (rejected by validation, or failed during import). Therefore
//
//     totalRecords = importedRecords + skippedRecords + invalidRecords
//
//   holds for every batch, including one in which nothing succeeded.
//
// ORDERING:
//   Errors and warnings are ordered by sheet row, then by the order they
//   were recorded. Failed aggregates are ordered by their first row.
//
// =============================================================================

package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/ginjaninja78/prf-budget-import/internal/validation"
)

// Batch states.
const (
	StateReceived        = "received"
	StateParsed          = "parsed"
	StateGrouped         = "grouped"
	StateValidated       = "validated"
	StateImported        = "imported"
	StateReported        = "reported"
	StateRejectedAtParse = "rejected_at_parse"
)

// =============================================================================
// REPORT STRUCTURES
// =============================================================================

// SuccessfulAggregate is one created or updated purchase request.
type SuccessfulAggregate struct {
	RequestNumber string `json:"requestNumber"`
	ID            string `json:"id"`
	ItemCount     int    `json:"itemCount"`
	Status        string `json:"status"`
	CreatedCOA    bool   `json:"createdCoa,omitempty"`
}

// FailedAggregate is one purchase request that was not written.
type FailedAggregate struct {
	RequestNumber string `json:"requestNumber"`
	Reason        string `json:"reason"`
	Rows          []int  `json:"rows"`
}

// AggregateDetails splits aggregates by outcome. Skipped aggregates are in
// neither list; they are reported as warnings.
type AggregateDetails struct {
	Successful []SuccessfulAggregate `json:"successful"`
	Failed     []FailedAggregate     `json:"failed"`
}

// BudgetRow is the outcome of one budget row.
type BudgetRow struct {
	Row        int    `json:"row"`
	CostCode   string `json:"costCode"`
	FiscalYear int    `json:"fiscalYear,omitempty"`
	Status     string `json:"status"`
	ID         string `json:"id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BudgetSummary counts budget row outcomes.
type BudgetSummary struct {
	TotalRows int         `json:"totalRows"`
	Imported  int         `json:"imported"`
	Updated   int         `json:"updated"`
	Skipped   int         `json:"skipped"`
	Conflicts int         `json:"conflicts"`
	Failed    int         `json:"failed"`
	Invalid   int         `json:"invalid"`
	Rows      []BudgetRow `json:"rows"`
}

// ImportReport is the result of an import batch.
type ImportReport struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	BatchID    string    `json:"batchId"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TotalRows       int `json:"totalRows"`
	TotalRecords    int `json:"totalRecords"`
	ImportedRecords int `json:"importedRecords"`
	SkippedRecords  int `json:"skippedRecords"`
	InvalidRecords  int `json:"invalidRecords"`

	Errors   []types.Issue `json:"errors"`
	Warnings []types.Issue `json:"warnings"`

	TotalAggregates      int              `json:"totalAggregates"`
	SuccessfulAggregates int              `json:"successfulAggregates"`
	FailedAggregates     int              `json:"failedAggregates"`
	AggregateDetails     AggregateDetails `json:"aggregateDetails"`

	CreatedCostCodes []string       `json:"createdCostCodes"`
	Budget           *BudgetSummary `json:"budget,omitempty"`
}

// ValidationSummary is the validate-only result for one sheet.
type ValidationSummary struct {
	ValidCount   int           `json:"validCount"`
	InvalidCount int           `json:"invalidCount"`
	Errors       []types.Issue `json:"errors"`
	Warnings     []types.Issue `json:"warnings"`
}

// ValidationReport is the result of a validate-only batch.
type ValidationReport struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	BatchID    string    `json:"batchId"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TotalRows         int                `json:"totalRows"`
	RequestValidation ValidationSummary  `json:"requestValidation"`
	BudgetValidation  *ValidationSummary `json:"budgetValidation,omitempty"`
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder accumulates one batch. It is not safe for concurrent use.
type Builder struct {
	batchID   string
	startedAt time.Time

	totalRows  int
	hasBudget  bool
	budgetRows int

	// request side
	aggregates int
	requestOK  int
	requestBad int
	reqIssues  []types.Issue
	successful []SuccessfulAggregate
	failed     []failedEntry
	imported   int
	skipped    int
	invalid    int

	// budget side
	budgetOK     int
	budgetBad    int
	budgetIssues []types.Issue
	budget       BudgetSummary

	created []string
}

type failedEntry struct {
	FailedAggregate
	firstRow int
}

// NewBuilder starts a report for a batch.
func NewBuilder(batchID string, startedAt time.Time) *Builder {
	return &Builder{batchID: batchID, startedAt: startedAt}
}

// SetRows records how many data rows were examined. budgetRows < 0 means
// no budget sheet was processed.
func (b *Builder) SetRows(requestRows, budgetRows int) {
	b.totalRows = requestRows
	if budgetRows >= 0 {
		b.hasBudget = true
		b.budgetRows = budgetRows
		b.totalRows += budgetRows
	}
}

// AddRequestIssues records request-side issues produced outside the
// validator (reconciliation warnings).
func (b *Builder) AddRequestIssues(issues ...types.Issue) {
	b.reqIssues = append(b.reqIssues, issues...)
}

// AddBudgetIssues records budget-side issues produced outside the validator.
func (b *Builder) AddBudgetIssues(issues ...types.Issue) {
	b.budgetIssues = append(b.budgetIssues, issues...)
}

// AddValidation records the validation pass. Invalid aggregates become
// failed aggregates whose reason lists their errors.
//
// PARAMETERS:
//   - aggs: The aggregates, index-aligned with v.Requests.
func (b *Builder) AddValidation(aggs []types.RequestAggregate, v *validation.Batch) {
	b.aggregates += len(aggs)
	b.requestOK += v.RequestValid
	b.requestBad += v.RequestInvalid
	b.budgetOK += v.BudgetValid
	b.budgetBad += v.BudgetInvalid

	for i, res := range v.Requests {
		b.reqIssues = append(b.reqIssues, res.Issues...)
		if res.Valid() {
			continue
		}
		agg := aggs[i]
		b.invalid++
		b.failed = append(b.failed, failedEntry{
			FailedAggregate: FailedAggregate{
				RequestNumber: agg.RequestNumber,
				Reason:        errorSummary(res.Issues),
				Rows:          agg.Rows,
			},
			firstRow: agg.FirstRow(),
		})
	}
	for _, res := range v.Budget {
		b.budgetIssues = append(b.budgetIssues, res.Issues...)
	}
	b.budget.Invalid += v.BudgetInvalid
}

// AddOutcomes records import outcomes for the valid aggregates.
func (b *Builder) AddOutcomes(outcomes []types.AggregateOutcome) {
	for _, out := range outcomes {
		firstRow := 0
		if len(out.Rows) > 0 {
			firstRow = out.Rows[0]
		}

		switch out.Status {
		case types.OutcomeImported, types.OutcomeUpdated:
			b.imported++
			b.successful = append(b.successful, SuccessfulAggregate{
				RequestNumber: out.RequestNumber,
				ID:            out.ID,
				ItemCount:     out.ItemCount,
				Status:        string(out.Status),
				CreatedCOA:    out.CreatedCOA,
			})
		case types.OutcomeSkipped:
			b.skipped++
			b.reqIssues = append(b.reqIssues, types.Issue{
				Severity:      types.SeverityWarning,
				Row:           firstRow,
				Field:         types.FieldRequestNumber,
				Message:       fmt.Sprintf("request number '%s' already imported; skipped", out.RequestNumber),
				RequestNumber: out.RequestNumber,
				Rule:          "duplicate",
			})
		default:
			b.invalid++
			b.failed = append(b.failed, failedEntry{
				FailedAggregate: FailedAggregate{
					RequestNumber: out.RequestNumber,
					Reason:        out.Reason,
					Rows:          out.Rows,
				},
				firstRow: firstRow,
			})
			b.reqIssues = append(b.reqIssues, types.Issue{
				Severity:      types.SeverityError,
				Row:           firstRow,
				Message:       "import failed: " + out.Reason,
				RequestNumber: out.RequestNumber,
				Rule:          "import",
			})
		}
	}
}

// AddBudgetOutcomes records budget import outcomes.
func (b *Builder) AddBudgetOutcomes(outcomes []types.BudgetOutcome) {
	for _, out := range outcomes {
		b.budget.Rows = append(b.budget.Rows, BudgetRow{
			Row:        out.RowNumber,
			CostCode:   out.CostCode,
			FiscalYear: out.FiscalYear,
			Status:     string(out.Status),
			ID:         out.ID,
			Reason:     out.Reason,
		})

		switch out.Status {
		case types.OutcomeImported:
			b.budget.Imported++
		case types.OutcomeUpdated:
			b.budget.Updated++
		case types.OutcomeSkipped:
			b.budget.Skipped++
			b.budgetIssues = append(b.budgetIssues, types.Issue{
				Severity: types.SeverityWarning,
				Row:      out.RowNumber,
				Field:    types.FieldFiscalYear,
				Message:  fmt.Sprintf("allocation for cost code '%s' fiscal year %d already exists; skipped", out.CostCode, out.FiscalYear),
				Rule:     "duplicate",
			})
		case types.OutcomeConflict:
			b.budget.Conflicts++
			b.budgetIssues = append(b.budgetIssues, types.Issue{
				Severity: types.SeverityError,
				Row:      out.RowNumber,
				Field:    types.FieldFiscalYear,
				Message:  "allocation conflict: " + out.Reason,
				Rule:     "conflict",
			})
		default:
			b.budget.Failed++
			b.budgetIssues = append(b.budgetIssues, types.Issue{
				Severity: types.SeverityError,
				Row:      out.RowNumber,
				Field:    types.FieldCostCode,
				Message:  "import failed: " + out.Reason,
				Rule:     "import",
			})
		}
	}
}

// SetCreatedCostCodes records the placeholder COA codes created by the
// batch.
func (b *Builder) SetCreatedCostCodes(codes []string) {
	b.created = append([]string(nil), codes...)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Import finalises an import report.
func (b *Builder) Import(state string, finishedAt time.Time) *ImportReport {
	// Request issues first, then budget issues; each sheet in row order.
	errs, warnings := types.SplitIssues(append(sortIssues(b.reqIssues), sortIssues(b.budgetIssues)...))

	failed := make([]FailedAggregate, 0, len(b.failed))
	sort.SliceStable(b.failed, func(i, j int) bool { return b.failed[i].firstRow < b.failed[j].firstRow })
	for _, f := range b.failed {
		failed = append(failed, f.FailedAggregate)
	}

	r := &ImportReport{
		Success:    true,
		BatchID:    b.batchID,
		State:      state,
		StartedAt:  b.startedAt,
		FinishedAt: finishedAt,

		TotalRows:       b.totalRows,
		TotalRecords:    b.aggregates,
		ImportedRecords: b.imported,
		SkippedRecords:  b.skipped,
		InvalidRecords:  b.invalid,

		Errors:   nonNilSlice(errs),
		Warnings: nonNilSlice(warnings),

		TotalAggregates:      b.aggregates,
		SuccessfulAggregates: len(b.successful),
		FailedAggregates:     len(failed),
		AggregateDetails: AggregateDetails{
			Successful: nonNilSlice(b.successful),
			Failed:     failed,
		},

		CreatedCostCodes: nonNilSlice(b.created),
	}

	if b.hasBudget {
		summary := b.budget
		summary.TotalRows = b.budgetRows
		summary.Rows = nonNilSlice(summary.Rows)
		r.Budget = &summary
	}
	return r
}

// Validation finalises a validate-only report.
func (b *Builder) Validation(state string, finishedAt time.Time) *ValidationReport {
	reqErrs, reqWarnings := types.SplitIssues(sortIssues(b.reqIssues))

	r := &ValidationReport{
		Success:    true,
		BatchID:    b.batchID,
		State:      state,
		StartedAt:  b.startedAt,
		FinishedAt: finishedAt,
		TotalRows:  b.totalRows,
		RequestValidation: ValidationSummary{
			ValidCount:   b.requestOK,
			InvalidCount: b.requestBad,
			Errors:       nonNilSlice(reqErrs),
			Warnings:     nonNilSlice(reqWarnings),
		},
	}

	if b.hasBudget {
		errs, warnings := types.SplitIssues(sortIssues(b.budgetIssues))
		r.BudgetValidation = &ValidationSummary{
			ValidCount:   b.budgetOK,
			InvalidCount: b.budgetBad,
			Errors:       nonNilSlice(errs),
			Warnings:     nonNilSlice(warnings),
		}
	}
	return r
}

// RejectedImport builds the report for a batch that failed to parse.
func RejectedImport(batchID string, startedAt, finishedAt time.Time, err error) *ImportReport {
	return &ImportReport{
		Success:          false,
		Error:            err.Error(),
		BatchID:          batchID,
		State:            StateRejectedAtParse,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Errors:           []types.Issue{},
		Warnings:         []types.Issue{},
		AggregateDetails: AggregateDetails{Successful: []SuccessfulAggregate{}, Failed: []FailedAggregate{}},
		CreatedCostCodes: []string{},
	}
}

// RejectedValidation builds the validate-only report for a batch that
// failed to parse.
func RejectedValidation(batchID string, startedAt, finishedAt time.Time, err error) *ValidationReport {
	return &ValidationReport{
		Success:    false,
		Error:      err.Error(),
		BatchID:    batchID,
		State:      StateRejectedAtParse,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		RequestValidation: ValidationSummary{
			Errors:   []types.Issue{},
			Warnings: []types.Issue{},
		},
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// errorSummary joins the error messages of an invalid aggregate.
func errorSummary(issues []types.Issue) string {
	var msgs []string
	for _, is := range issues {
		if is.IsError() {
			msgs = append(msgs, is.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func sortIssues(issues []types.Issue) []types.Issue {
	out := append([]types.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
