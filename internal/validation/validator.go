// =============================================================================
// PRF Budget Import - Validation Engine
// =============================================================================
//
// This module checks grouped purchase requests and budget rows against the
// business rules and turns them into typed records.
//
// VALIDATION STRATEGY:
//   1. Header-level: request number, dates, people, amounts, budget year
//   2. Item-level: name, quantity, unit price, total consistency
//   3. Aggregate-level: requested amount vs. item sum
//   4. Directory-level: cost codes that the chart of accounts does not know
//
// ERROR HANDLING:
//   - Issues are collected, never returned as Go errors
//   - Each issue carries the sheet row, field and request number
//   - An aggregate with no error-severity issue is valid; warnings never
//     block import
//   - The validator has no side effects: the cost-code directory is a
//     read-only snapshot resolved before validation starts
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options contains the tunable business rules.
type Options struct {
	// FiscalYearMin and FiscalYearMax bound budget years and fiscal years,
	// inclusive.
	FiscalYearMin int
	FiscalYearMax int

	// AmountTolerance is the largest difference between a stated total and
	// the computed one that is not reported.
	AmountTolerance decimal.Decimal
}

// DefaultOptions returns the standard rule set.
func DefaultOptions() Options {
	return Options{
		FiscalYearMin:   2020,
		FiscalYearMax:   2030,
		AmountTolerance: decimal.NewFromFloat(0.01),
	}
}

// CodeDirectory answers cost-code questions from a snapshot of the chart of
// accounts. A nil CodeDirectory disables cost-code checks.
type CodeDirectory interface {
	Known(code string) bool
	// Suggest returns the closest known code, or "" when none is close.
	Suggest(code string) string
}

// =============================================================================
// RESULTS
// =============================================================================

// RequestResult is the outcome of validating one aggregate.
type RequestResult struct {
	// Request is set only when the aggregate is valid.
	Request *types.PurchaseRequest
	Issues  []types.Issue
}

// Valid reports whether the aggregate may be imported.
func (r RequestResult) Valid() bool { return r.Request != nil }

// BudgetResult is the outcome of validating one budget row.
type BudgetResult struct {
	Allocation *types.BudgetAllocation
	Issues     []types.Issue
}

// Valid reports whether the row may be imported.
func (r BudgetResult) Valid() bool { return r.Allocation != nil }

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator applies the business rules.
type Validator struct {
	options Options
}

// NewValidator creates a Validator with the given options.
func NewValidator(options Options) *Validator {
	if options.AmountTolerance.IsNegative() {
		options.AmountTolerance = decimal.Zero
	}
	return &Validator{options: options}
}

// collector gathers issues for one record.
type collector struct {
	requestNumber string
	issues        []types.Issue
	errors        int
}

func (c *collector) add(sev types.Severity, row int, field, rule, value, format string, args ...any) {
	c.issues = append(c.issues, types.Issue{
		Severity:      sev,
		Row:           row,
		Field:         field,
		Message:       fmt.Sprintf(format, args...),
		RequestNumber: c.requestNumber,
		Rule:          rule,
		Value:         value,
	})
	if sev == types.SeverityError {
		c.errors++
	}
}

func (c *collector) errorf(row int, field, rule, value, format string, args ...any) {
	c.add(types.SeverityError, row, field, rule, value, format, args...)
}

func (c *collector) warnf(row int, field, rule, value, format string, args ...any) {
	c.add(types.SeverityWarning, row, field, rule, value, format, args...)
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// ValidateRequest checks one aggregate.
//
// PARAMETERS:
//   - agg: The aggregate built by the grouper.
//   - codes: The cost-code snapshot, or nil.
//
// RETURNS:
//   - The typed request (when valid) and every issue found.
func (v *Validator) ValidateRequest(agg types.RequestAggregate, codes CodeDirectory) RequestResult {
	c := &collector{requestNumber: agg.RequestNumber}
	row := agg.FirstRow()

	req := &types.PurchaseRequest{
		RequestNumber: agg.RequestNumber,
		Submitter:     agg.Submitter,
		Department:    agg.Department,
		Description:   agg.Description,
		CostCode:      agg.CostCode,
		Rows:          agg.Rows,
	}

	// --- Request number ---
	switch {
	case agg.RequestNumber == "":
		c.errorf(row, types.FieldRequestNumber, "required", "", "request number required")
	case !strings.ContainsFunc(agg.RequestNumber, unicode.IsDigit):
		c.errorf(row, types.FieldRequestNumber, "format", agg.RequestNumber,
			"request number '%s' must contain at least one digit", agg.RequestNumber)
	}

	// --- Submit date ---
	if date, err := ParseDate(agg.SubmitDate); err != nil {
		if errors.Is(err, ErrMissing) {
			c.warnf(row, types.FieldSubmitDate, "missing", "", "submit date is missing")
		} else {
			c.errorf(row, types.FieldSubmitDate, "date", types.CellText(agg.SubmitDate),
				"invalid submit date: %v", err)
		}
	} else {
		req.SubmitDate = &date
	}

	// --- Submitter and description ---
	if agg.Submitter == "" {
		c.errorf(row, types.FieldSubmitter, "required", "", "submitter is required")
	}
	if agg.Description == "" {
		c.errorf(row, types.FieldDescription, "required", "", "description is required")
	}

	// --- Budget year ---
	if !types.IsBlank(agg.BudgetYear) {
		if year, ok := v.checkYear(c, row, types.FieldBudgetYear, agg.BudgetYear, "budget year"); ok {
			req.BudgetYear = year
		}
	}

	// --- Items ---
	itemsOK := true
	for _, line := range agg.Items {
		item, ok := v.validateItem(c, line)
		if !ok {
			itemsOK = false
			continue
		}
		req.Items = append(req.Items, item)
		req.ItemsTotal = req.ItemsTotal.Add(item.TotalPrice)
	}

	// --- Requested amount ---
	v.checkRequestedAmount(c, agg, req, row, itemsOK)

	// --- Cost code ---
	if agg.CostCode != "" && codes != nil && !codes.Known(agg.CostCode) {
		v.warnUnknownCode(c, row, types.FieldPurchaseCostCode, agg.CostCode, codes)
	}

	if c.errors > 0 {
		return RequestResult{Issues: c.issues}
	}
	return RequestResult{Request: req, Issues: c.issues}
}

// validateItem checks one item line.
func (v *Validator) validateItem(c *collector, line types.RequestItemLine) (types.PurchaseItem, bool) {
	before := c.errors
	row := line.RowNumber

	item := types.PurchaseItem{
		RowNumber:   row,
		Name:        line.Name,
		Description: line.Description,
	}

	if line.Name == "" {
		c.errorf(row, types.FieldItemName, "required", "", "item name is required")
	}

	qty, err := ParseDecimal(line.Quantity)
	switch {
	case errors.Is(err, ErrMissing):
		c.errorf(row, types.FieldQuantity, "required", "", "quantity is required")
	case err != nil:
		c.errorf(row, types.FieldQuantity, "number", types.CellText(line.Quantity), "invalid quantity: %v", err)
	case !qty.IsPositive():
		c.errorf(row, types.FieldQuantity, "positive", qty.String(), "quantity must be greater than 0, got %s", qty)
	default:
		item.Quantity = qty
	}

	price, err := ParseDecimal(line.UnitPrice)
	switch {
	case errors.Is(err, ErrMissing):
		c.errorf(row, types.FieldUnitPrice, "required", "", "unit price is required")
	case err != nil:
		c.errorf(row, types.FieldUnitPrice, "number", types.CellText(line.UnitPrice), "invalid unit price: %v", err)
	case price.IsNegative():
		c.errorf(row, types.FieldUnitPrice, "non_negative", price.String(), "unit price must not be negative, got %s", price)
	default:
		item.UnitPrice = price
	}

	if c.errors > before {
		return types.PurchaseItem{}, false
	}

	item.TotalPrice = item.Quantity.Mul(item.UnitPrice)

	if !types.IsBlank(line.TotalPrice) {
		stated, err := ParseDecimal(line.TotalPrice)
		switch {
		case err != nil:
			c.warnf(row, types.FieldTotalPrice, "number", types.CellText(line.TotalPrice),
				"total price ignored: %v", err)
		case !withinTolerance(stated, item.TotalPrice, v.options.AmountTolerance):
			c.warnf(row, types.FieldTotalPrice, "total_mismatch", stated.String(),
				"total price %s does not match quantity x unit price %s", stated, item.TotalPrice)
		}
	}
	return item, true
}

// checkRequestedAmount validates the requested amount, deriving it from the
// items when the sheet does not supply one.
func (v *Validator) checkRequestedAmount(c *collector, agg types.RequestAggregate, req *types.PurchaseRequest, row int, itemsOK bool) {
	amount, err := ParseDecimal(agg.RequestedAmount)
	switch {
	case errors.Is(err, ErrMissing):
		if len(req.Items) > 0 && itemsOK && req.ItemsTotal.IsPositive() {
			req.RequestedAmount = req.ItemsTotal
			c.warnf(row, types.FieldRequestedAmount, "derived", "",
				"requested amount missing, using item total %s", req.ItemsTotal.StringFixed(2))
			return
		}
		c.errorf(row, types.FieldRequestedAmount, "required", "", "requested amount is required")
	case err != nil:
		c.errorf(row, types.FieldRequestedAmount, "number", types.CellText(agg.RequestedAmount),
			"invalid requested amount: %v", err)
	case !amount.IsPositive():
		c.errorf(row, types.FieldRequestedAmount, "positive", amount.String(),
			"requested amount must be greater than 0, got %s", amount)
	default:
		req.RequestedAmount = amount
		if len(req.Items) > 0 && itemsOK && !withinTolerance(amount, req.ItemsTotal, v.options.AmountTolerance) {
			c.warnf(row, types.FieldRequestedAmount, "total_mismatch", amount.String(),
				"requested amount %s does not match item total %s", amount, req.ItemsTotal)
		}
	}
}

// =============================================================================
// BUDGET VALIDATION
// =============================================================================

// ValidateBudgetRow checks one budget allocation row.
func (v *Validator) ValidateBudgetRow(r types.BudgetAllocationRow, codes CodeDirectory) BudgetResult {
	c := &collector{}
	row := r.RowNumber

	alloc := &types.BudgetAllocation{
		RowNumber:   row,
		CostCode:    r.CostCode,
		Description: r.Description,
	}

	if r.CostCode == "" {
		c.errorf(row, types.FieldCostCode, "required", "", "cost code is required")
	} else if codes != nil && !codes.Known(r.CostCode) {
		v.warnUnknownCode(c, row, types.FieldCostCode, r.CostCode, codes)
	}

	if year, ok := v.checkYear(c, row, types.FieldFiscalYear, r.FiscalYear, "fiscal year"); ok {
		alloc.FiscalYear = year
	}

	amount, err := ParseDecimal(r.AllocatedAmount)
	switch {
	case errors.Is(err, ErrMissing):
		c.errorf(row, types.FieldAllocatedAmount, "required", "", "allocated amount is required")
	case err != nil:
		c.errorf(row, types.FieldAllocatedAmount, "number", types.CellText(r.AllocatedAmount),
			"invalid allocated amount: %v", err)
	case !amount.IsPositive():
		c.errorf(row, types.FieldAllocatedAmount, "positive", amount.String(),
			"allocated amount must be greater than 0, got %s", amount)
	default:
		alloc.Amount = amount
	}

	if c.errors > 0 {
		return BudgetResult{Issues: c.issues}
	}
	return BudgetResult{Allocation: alloc, Issues: c.issues}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// checkYear emits exactly one error when the year is missing, malformed or
// out of range.
func (v *Validator) checkYear(c *collector, row int, field string, cell types.CellValue, label string) (int, bool) {
	year, err := ParseYear(cell)
	switch {
	case errors.Is(err, ErrMissing):
		c.errorf(row, field, "required", "", "%s is required", label)
		return 0, false
	case err != nil:
		c.errorf(row, field, "number", types.CellText(cell), "invalid %s: %v", label, err)
		return 0, false
	case year < v.options.FiscalYearMin || year > v.options.FiscalYearMax:
		c.errorf(row, field, "range", fmt.Sprint(year), "%s %d is outside %d-%d",
			label, year, v.options.FiscalYearMin, v.options.FiscalYearMax)
		return 0, false
	}
	return year, true
}

func (v *Validator) warnUnknownCode(c *collector, row int, field, code string, codes CodeDirectory) {
	msg := fmt.Sprintf("cost code '%s' not found in chart of accounts", code)
	if s := codes.Suggest(code); s != "" && s != code {
		msg += fmt.Sprintf(" (did you mean '%s'?)", s)
	}
	c.warnf(row, field, "unknown_code", code, "%s", msg)
}

// withinTolerance reports whether |a-b| <= tol.
func withinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
