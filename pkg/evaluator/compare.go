// Package evaluator evaluates condition branches and weighted paths.
package evaluator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Supported condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
)

// ErrUnknownOperator indicates a predicate uses an operator this evaluator does not support.
var ErrUnknownOperator = errors.New("unknown condition operator")

// IsOperator reports whether op is supported.
func IsOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpExists, OpNotExists:
		return true
	default:
		return false
	}
}

// Compare applies operator to a resolved field value. present is false when
// the field does not exist at all.
func Compare(actual any, present bool, operator string, expected any) (bool, error) {
	switch operator {
	case OpExists:
		return present && !isEmpty(actual), nil
	case OpNotExists:
		return !present || isEmpty(actual), nil
	case OpEquals:
		return present && equal(actual, expected), nil
	case OpNotEquals:
		return !present || !equal(actual, expected), nil
	case OpContains:
		if !present || actual == nil {
			return false, nil
		}

		return strings.Contains(strings.ToLower(stringify(actual)), strings.ToLower(stringify(expected))), nil
	case OpGreaterThan, OpLessThan:
		a, okA := toFloat(actual)
		e, okE := toFloat(expected)

		if !present || !okA || !okE {
			return false, nil
		}

		if operator == OpGreaterThan {
			return a > e, nil
		}

		return a < e, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func equal(actual, expected any) bool {
	a, okA := toFloat(actual)
	e, okE := toFloat(expected)

	if okA && okE {
		return a == e
	}

	return stringify(actual) == stringify(expected)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)

		return f, err == nil
	default:
		return 0, false
	}
}
