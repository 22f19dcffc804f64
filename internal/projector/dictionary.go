package projector

import (
	"strings"
	"unicode"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// =============================================================================
// HEADER DICTIONARY
// =============================================================================
//
// A Dictionary maps header cell text to canonical field names. Matching is
// case-insensitive and ignores punctuation and repeated whitespace, so
// "PRF No.", "prf  no" and "PRF_NO" are the same header.
//
// The request and budget sheets have separate dictionaries because the same
// header text means different things on each ("Cost Code", "Amount").
//
// =============================================================================

// requestAliases are the built-in header texts for the request sheet.
var requestAliases = map[string][]string{
	types.FieldRequestNumber: {
		"prf", "prf no", "prf number", "prf num", "pr no", "pr number",
		"request no", "request number", "request id",
	},
	types.FieldSubmitDate: {
		"date", "prf date", "request date", "date submitted", "submission date", "date requested",
	},
	types.FieldSubmitter: {
		"requested by", "requestor", "requester", "submitted by", "name", "end user",
	},
	types.FieldDepartment: {
		"dept", "office", "division", "unit", "section",
	},
	types.FieldDescription: {
		"purpose", "particulars", "request description", "title",
	},
	types.FieldPurchaseCostCode: {
		"cost code", "coa", "coa code", "account code", "charge to", "budget code",
	},
	types.FieldRequestedAmount: {
		"amount", "total amount", "requested amount", "estimated cost", "abc", "prf amount",
	},
	types.FieldBudgetYear: {
		"budget year", "fy", "year", "fiscal year",
	},
	types.FieldItemName: {
		"item", "item name", "article", "item code",
	},
	types.FieldItemDescription: {
		"item description", "specification", "specifications", "specs",
	},
	types.FieldQuantity: {
		"qty", "quantity", "no of units", "units",
	},
	types.FieldUnitPrice: {
		"unit price", "unit cost", "price", "cost per unit",
	},
	types.FieldTotalPrice: {
		"total price", "total cost", "line total", "item total", "extended price",
	},
}

// budgetAliases are the built-in header texts for the budget sheet.
var budgetAliases = map[string][]string{
	types.FieldCostCode: {
		"cost code", "coa", "coa code", "account code", "account", "budget code",
	},
	types.FieldFiscalYear: {
		"fiscal year", "fy", "year", "budget year",
	},
	types.FieldAllocatedAmount: {
		"amount", "allocated amount", "allocation", "budget", "budget amount", "appropriation",
	},
	types.FieldDescription: {
		"particulars", "remarks", "account name", "title",
	},
}

// Dictionary resolves header text to canonical field names.
type Dictionary struct {
	lookup map[string]string
}

// NewDictionary builds a dictionary for the given canonical fields.
//
// PARAMETERS:
//   - builtin: canonical field -> accepted header texts.
//   - extra: configured aliases; only keys that are fields of this
//     dictionary are used, so one alias map can serve both sheets.
func NewDictionary(builtin, extra map[string][]string) *Dictionary {
	d := &Dictionary{lookup: make(map[string]string)}
	for field, aliases := range builtin {
		d.add(field, field)
		for _, a := range aliases {
			d.add(a, field)
		}
	}
	for field, aliases := range extra {
		if _, ok := builtin[field]; !ok {
			continue
		}
		for _, a := range aliases {
			// Configured aliases override built-in ones.
			d.lookup[normalizeHeader(a)] = field
		}
	}
	return d
}

// RequestDictionary returns the request-sheet dictionary.
func RequestDictionary(extra map[string][]string) *Dictionary {
	return NewDictionary(requestAliases, extra)
}

// BudgetDictionary returns the budget-sheet dictionary.
func BudgetDictionary(extra map[string][]string) *Dictionary {
	return NewDictionary(budgetAliases, extra)
}

// Canonical returns the canonical field for a header text.
func (d *Dictionary) Canonical(header string) (string, bool) {
	field, ok := d.lookup[normalizeHeader(header)]
	return field, ok
}

func (d *Dictionary) add(alias, field string) {
	key := normalizeHeader(alias)
	if _, exists := d.lookup[key]; !exists {
		d.lookup[key] = field
	}
}

// normalizeHeader lowercases text and collapses every run of
// non-alphanumeric characters into a single space.
func normalizeHeader(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
