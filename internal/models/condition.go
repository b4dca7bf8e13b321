package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator usable in trigger and stop conditions.
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorContains Operator = "contains"
)

// Condition is a single (field, operator, value) comparison evaluated
// against a record's data map. A nil *Condition always evaluates to true.
// Multi-clause boolean expressions are intentionally unsupported.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Validate checks the condition at template-link save time so that a
// malformed condition never reaches evaluation.
func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	switch c.Operator {
	case OperatorEq, OperatorNe, OperatorContains:
		return nil
	default:
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}
}

// Evaluate compares the record field against the condition value. The
// field value is coerced to its string form first; a missing field
// coerces to "", so eq with an empty value matches records without the
// field. This matches the historical behavior and is relied upon by
// existing template links.
func (c *Condition) Evaluate(data map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}
	got := FieldString(data[c.Field])
	switch c.Operator {
	case OperatorEq:
		return got == c.Value, nil
	case OperatorNe:
		return got != c.Value, nil
	case OperatorContains:
		return strings.Contains(got, c.Value), nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", c.Operator)
	}
}

// FieldString coerces a record data value to its string form. Record
// data round-trips through JSON, so numbers arrive as float64.
func FieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
