package workbook

import (
	"fmt"
	"strings"
)

// =============================================================================
// SHEET RESOLVER
// =============================================================================

// Tokens are the case-insensitive substrings that identify sheets by name.
type Tokens struct {
	Request []string
	Budget  []string
}

// Selection is the outcome of sheet resolution.
type Selection struct {
	RequestSheet string

	// BudgetSheet is empty when the workbook has no budget sheet; budget
	// validation and import are then skipped.
	BudgetSheet string
}

// HasBudget reports whether a budget sheet was resolved.
func (s Selection) HasBudget() bool { return s.BudgetSheet != "" }

// ResolveSheets decides which sheets hold request and budget data.
//
// PARAMETERS:
//   - names: The workbook's sheet names, in order.
//   - requestSheet, budgetSheet: Explicit names from the caller; empty means
//     "pick one".
//   - tokens: Name heuristics.
//
// RESOLUTION ORDER:
//  1. An explicit name is used as-is; a name not in the workbook is
//     ErrSheetNotFound.
//  2. Otherwise the first token (in token order) contained in a sheet name
//     wins. Token order matters: "prf" outranks "request".
//  3. With no match the request sheet is the first sheet and the budget
//     sheet is absent.
//
// The budget heuristic never picks the request sheet.
func ResolveSheets(names []string, requestSheet, budgetSheet string, tokens Tokens) (Selection, error) {
	if len(names) == 0 {
		return Selection{}, fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}

	var sel Selection

	switch {
	case requestSheet != "":
		if !contains(names, requestSheet) {
			return Selection{}, fmt.Errorf("%w: request sheet %q", ErrSheetNotFound, requestSheet)
		}
		sel.RequestSheet = requestSheet
	default:
		sel.RequestSheet = matchToken(names, tokens.Request, "")
		if sel.RequestSheet == "" {
			sel.RequestSheet = names[0]
		}
	}

	switch {
	case budgetSheet != "":
		if !contains(names, budgetSheet) {
			return Selection{}, fmt.Errorf("%w: budget sheet %q", ErrSheetNotFound, budgetSheet)
		}
		sel.BudgetSheet = budgetSheet
	default:
		sel.BudgetSheet = matchToken(names, tokens.Budget, sel.RequestSheet)
	}

	return sel, nil
}

// matchToken returns the first sheet containing a token, trying tokens in
// order. exclude is never returned.
func matchToken(names, tokens []string, exclude string) string {
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		for _, name := range names {
			if name == exclude {
				continue
			}
			if strings.Contains(strings.ToLower(name), token) {
				return name
			}
		}
	}
	return ""
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
