// =============================================================================
// PRF Budget Import - Transformation Engine
// =============================================================================
//
// This module applies the configured transformation rules to projected rows
// before they are grouped.
//
// TRANSFORMATION TYPES:
//   - String manipulations (trim, case conversion, prepend, append)
//   - Padding and zero handling for codes
//   - Substring and regular expression replacements
//   - Lookup table replacements
//
// SCOPE:
//   Only Text cells are transformed. Numbers and dates are never rewritten,
//   so a rule for "quantity" cannot change the value a user typed as a
//   number. A transformation that leaves nothing but whitespace turns the
//   cell into Empty.
//
// =============================================================================

package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

var (
	nonDigits  = regexp.MustCompile(`\D+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// =============================================================================
// TRANSFORMER
// =============================================================================

// action is a TransformationAction with its arguments parsed once.
type action struct {
	config.TransformationAction
	re     *regexp.Regexp
	length int
}

// Transformer applies field transformation rules.
type Transformer struct {
	rules map[string][]action
}

// NewTransformer compiles the rules.
//
// RETURNS:
//   - An error naming the field when a rule has an unknown type, an invalid
//     regular expression or a non-numeric length.
func NewTransformer(rules []config.TransformationRule) (*Transformer, error) {
	t := &Transformer{rules: make(map[string][]action)}
	for _, rule := range rules {
		for _, a := range rule.Actions {
			compiled, err := compile(a)
			if err != nil {
				return nil, fmt.Errorf("transformation rule for '%s': %w", rule.Field, err)
			}
			t.rules[rule.Field] = append(t.rules[rule.Field], compiled)
		}
	}
	return t, nil
}

func compile(a config.TransformationAction) (action, error) {
	c := action{TransformationAction: a}
	switch a.Type {
	case "trim", "trim_left", "trim_right", "uppercase", "lowercase",
		"prepend_string", "append_string", "replace",
		"remove_leading_zeros", "normalize_whitespace", "extract_digits",
		"lookup", "lookup_with_default":
	case "regex_replace":
		if a.Find == "" {
			return c, fmt.Errorf("regex_replace requires find")
		}
		re, err := regexp.Compile(a.Find)
		if err != nil {
			return c, fmt.Errorf("invalid regex pattern: %w", err)
		}
		c.re = re
	case "pad_zeros_to_length":
		n, err := strconv.Atoi(strings.TrimSpace(a.Value))
		if err != nil || n <= 0 {
			return c, fmt.Errorf("pad_zeros_to_length needs a positive length, got %q", a.Value)
		}
		c.length = n
	default:
		return c, fmt.Errorf("unknown transformation type: %s", a.Type)
	}
	return c, nil
}

// Empty reports whether no rule is configured.
func (t *Transformer) Empty() bool { return len(t.rules) == 0 }

// Apply returns a copy of rows with every rule applied. The input rows are
// not modified.
func (t *Transformer) Apply(rows []types.RawRow) []types.RawRow {
	if t.Empty() {
		return rows
	}
	out := make([]types.RawRow, len(rows))
	for i, row := range rows {
		fields := make(map[string]types.CellValue, len(row.Fields))
		for field, cell := range row.Fields {
			fields[field] = t.TransformCell(field, cell)
		}
		out[i] = types.RawRow{RowNumber: row.RowNumber, Fields: fields}
	}
	return out
}

// TransformCell applies the rules for field to one cell.
func (t *Transformer) TransformCell(field string, cell types.CellValue) types.CellValue {
	text, ok := cell.(types.Text)
	if !ok {
		return cell
	}
	actions, ok := t.rules[field]
	if !ok {
		return cell
	}

	value := string(text)
	for _, a := range actions {
		value = a.apply(value)
	}
	if strings.TrimSpace(value) == "" {
		return types.Empty{}
	}
	return types.Text(value)
}

// Transform applies the rules for field to a plain string.
func (t *Transformer) Transform(field, value string) string {
	for _, a := range t.rules[field] {
		value = a.apply(value)
	}
	return value
}

// =============================================================================
// TRANSFORMATION FUNCTIONS
// =============================================================================

func (a action) apply(value string) string {
	switch a.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "trim":
		return strings.TrimSpace(value)

	case "trim_left":
		if a.Value != "" {
			return strings.TrimLeft(value, a.Value)
		}
		return strings.TrimLeft(value, " \t\n\r")

	case "trim_right":
		if a.Value != "" {
			return strings.TrimRight(value, a.Value)
		}
		return strings.TrimRight(value, " \t\n\r")

	case "uppercase":
		return strings.ToUpper(value)

	case "lowercase":
		return strings.ToLower(value)

	case "prepend_string":
		// EXAMPLE: "0417" with value "OPS-" -> "OPS-0417"
		return a.Value + value

	case "append_string":
		return value + a.Value

	case "replace":
		if a.Find == "" {
			return value
		}
		return strings.ReplaceAll(value, a.Find, a.Value)

	case "regex_replace":
		// EXAMPLE: "PRF 2024 / 17" with find `\s*/\s*` and value "-" -> "PRF 2024-17"
		return a.re.ReplaceAllString(value, a.Value)

	case "normalize_whitespace":
		return strings.TrimSpace(whitespace.ReplaceAllString(value, " "))

	// =========================================================================
	// CODE FORMATTING
	// =========================================================================

	case "pad_zeros_to_length":
		// EXAMPLE: "417" with value "6" -> "000417"
		return PadLeft(value, a.length, '0')

	case "remove_leading_zeros":
		result := strings.TrimLeft(value, "0")
		if result == "" && value != "" {
			return "0"
		}
		return result

	case "extract_digits":
		return nonDigits.ReplaceAllString(value, "")

	// =========================================================================
	// LOOKUP TABLE REPLACEMENTS
	// =========================================================================

	case "lookup":
		if replacement, exists := a.LookupTable[value]; exists {
			return replacement
		}
		return value

	case "lookup_with_default":
		if replacement, exists := a.LookupTable[value]; exists {
			return replacement
		}
		return a.Value
	}
	return value
}

// PadLeft pads s with padChar on the left to reach length runes.
func PadLeft(s string, length int, padChar rune) string {
	n := len([]rune(s))
	if n >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-n) + s
}
