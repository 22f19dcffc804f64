// =============================================================================
// PRF Budget Import - Shared Types
// =============================================================================
//
// This package contains the domain model shared by every stage of the
// ingestion pipeline. Types defined here are used by:
//   - workbook / projector (cells and raw rows)
//   - grouper / reconcile (aggregates and budget rows)
//   - validation (issues, typed records)
//   - importer / store / report (outcomes)
//
// Keeping them in one leaf package avoids import cycles between stages.
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CANONICAL FIELD NAMES
// =============================================================================

// Request sheet fields.
const (
	FieldRequestNumber    = "request_number"
	FieldSubmitDate       = "submit_date"
	FieldSubmitter        = "submitter"
	FieldDepartment       = "department"
	FieldDescription      = "description"
	FieldPurchaseCostCode = "purchase_cost_code"
	FieldRequestedAmount  = "requested_amount"
	FieldBudgetYear       = "budget_year"
	FieldItemName         = "item_name"
	FieldItemDescription  = "item_description"
	FieldQuantity         = "quantity"
	FieldUnitPrice        = "unit_price"
	FieldTotalPrice       = "total_price"
)

// Budget sheet fields.
const (
	FieldCostCode        = "cost_code"
	FieldFiscalYear      = "fiscal_year"
	FieldAllocatedAmount = "allocated_amount"
)

// =============================================================================
// RAW ROWS
// =============================================================================

// RawRow is one non-blank data row projected through the sheet's header.
// Values are untyped cells; coercion happens in validation so that error
// messages can quote the original content.
type RawRow struct {
	// RowNumber is the 1-based row number in the original sheet.
	RowNumber int

	// Fields maps a canonical field name (or, for unknown headers, the
	// trimmed header text) to the cell value.
	Fields map[string]CellValue
}

// Get returns the cell for a field, or Empty when the field is absent.
func (r RawRow) Get(field string) CellValue {
	if v, ok := r.Fields[field]; ok && v != nil {
		return v
	}
	return Empty{}
}

// Text returns the trimmed text of a field.
func (r RawRow) Text(field string) string {
	return CellText(r.Get(field))
}

// Has reports whether the field carries a non-blank value.
func (r RawRow) Has(field string) bool {
	return !IsBlank(r.Get(field))
}

// =============================================================================
// REQUEST AGGREGATES
// =============================================================================

// RequestItemLine is one item of a purchase request as it appeared in the
// sheet. Numeric columns stay as cells until validation.
type RequestItemLine struct {
	// RowNumber is the originating sheet row, kept for traceability.
	RowNumber int

	Name        string
	Description string
	Quantity    CellValue
	UnitPrice   CellValue
	TotalPrice  CellValue
}

// RequestAggregate is the logical Purchase Request built from a contiguous
// run of rows sharing one request number.
type RequestAggregate struct {
	RequestNumber string

	// Header fields come from the first row of the run.
	SubmitDate      CellValue
	Submitter       string
	Department      string
	Description     string
	CostCode        string
	RequestedAmount CellValue
	BudgetYear      CellValue

	// Items are in first-seen row order. Zero items is legal.
	Items []RequestItemLine

	// Rows lists every row number that contributed to this aggregate.
	Rows []int
}

// FirstRow returns the row that supplied the header fields.
func (a *RequestAggregate) FirstRow() int {
	if len(a.Rows) == 0 {
		return 0
	}
	return a.Rows[0]
}

// PurchaseItem is a validated, typed item line.
type PurchaseItem struct {
	RowNumber   int
	Name        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Specification is the free-form blob persisted with each item. It always
// carries the originating row for traceability.
func (i PurchaseItem) Specification() map[string]any {
	spec := map[string]any{"source_row": i.RowNumber}
	if i.Description != "" {
		spec["description"] = i.Description
	}
	return spec
}

// PurchaseRequest is the typed form of a valid RequestAggregate, ready to be
// persisted.
type PurchaseRequest struct {
	RequestNumber   string
	SubmitDate      *time.Time
	Submitter       string
	Department      string
	Description     string
	CostCode        string
	RequestedAmount decimal.Decimal
	ItemsTotal      decimal.Decimal
	BudgetYear      int
	Items           []PurchaseItem
	Rows            []int
}

// =============================================================================
// BUDGET ROWS
// =============================================================================

// BudgetAllocationRow is one row of the budget sheet before validation.
type BudgetAllocationRow struct {
	RowNumber       int
	CostCode        string
	FiscalYear      CellValue
	AllocatedAmount CellValue
	Description     string
}

// BudgetAllocation is a validated budget row.
type BudgetAllocation struct {
	RowNumber   int
	CostCode    string
	FiscalYear  int
	Amount      decimal.Decimal
	Description string
}

// =============================================================================
// VALIDATION ISSUES
// =============================================================================

// Severity distinguishes blocking errors from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation error or warning. Issues are created once and
// never mutated.
type Issue struct {
	Severity Severity `json:"-"`

	// Row is the originating 1-based sheet row.
	Row int `json:"row"`

	// Field is the business field name, when the issue concerns one.
	Field string `json:"field,omitempty"`

	Message string `json:"message"`

	RequestNumber string `json:"requestNumber,omitempty"`

	// Rule names the check that produced the issue (e.g. "required").
	Rule string `json:"-"`

	// Value is the offending raw content.
	Value string `json:"-"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] row %d", strings.ToUpper(string(i.Severity)), i.Row)
	if i.RequestNumber != "" {
		fmt.Fprintf(&b, ", request %s", i.RequestNumber)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, ", field '%s'", i.Field)
	}
	fmt.Fprintf(&b, ": %s", i.Message)
	return b.String()
}

// IsError reports whether the issue blocks import.
func (i Issue) IsError() bool { return i.Severity == SeverityError }

// SplitIssues separates errors from warnings, preserving order.
func SplitIssues(issues []Issue) (errs, warnings []Issue) {
	for _, is := range issues {
		if is.IsError() {
			errs = append(errs, is)
		} else {
			warnings = append(warnings, is)
		}
	}
	return errs, warnings
}

// =============================================================================
// IMPORT OPTIONS AND OUTCOMES
// =============================================================================

// ImportOptions controls duplicate handling and COA auto-creation.
type ImportOptions struct {
	SkipDuplicates bool `json:"skipDuplicates" yaml:"skip_duplicates"`
	UpdateExisting bool `json:"updateExisting" yaml:"update_existing"`
	AutoCreateCOA  bool `json:"autoCreateCoa" yaml:"auto_create_coa"`
}

// OutcomeStatus is the result of importing one record.
type OutcomeStatus string

const (
	OutcomeImported OutcomeStatus = "imported"
	OutcomeUpdated  OutcomeStatus = "updated"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeConflict OutcomeStatus = "conflict"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Succeeded reports whether the record was written.
func (s OutcomeStatus) Succeeded() bool {
	return s == OutcomeImported || s == OutcomeUpdated
}

// AggregateOutcome is the import result for one RequestAggregate.
type AggregateOutcome struct {
	RequestNumber string
	Status        OutcomeStatus
	ID            string
	ItemCount     int
	Reason        string
	Rows          []int
	CreatedCOA    bool
}

// BudgetOutcome is the import result for one budget row.
type BudgetOutcome struct {
	RowNumber  int
	CostCode   string
	FiscalYear int
	Status     OutcomeStatus
	ID         string
	Reason     string
	CreatedCOA bool
}

// =============================================================================
// STORED ENTITIES
// =============================================================================

// ChartOfAccount is a COA directory entry. The pipeline reads these and
// creates placeholders; it never edits existing metadata.
type ChartOfAccount struct {
	ID       string
	Code     string
	Name     string
	Category string
	Active   bool
}

// StoredRequest is a persisted purchase request header.
type StoredRequest struct {
	ID            string
	RequestNumber string
	COAID         string
	ItemCount     int
}

// Allocation is a persisted budget allocation for one (COA, fiscal year).
type Allocation struct {
	ID          string
	COAID       string
	FiscalYear  int
	Amount      decimal.Decimal
	Description string
}
