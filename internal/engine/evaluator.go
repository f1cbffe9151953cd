package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dealscope/valuation-engine/internal/models"
)

// Evaluator evaluates condition trees against flattened listing fields.
// Evaluation is pure: identical inputs always yield identical results
// and nothing here performs I/O or raises.
type Evaluator struct{}

// NewEvaluator creates a new condition evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates a condition tree. A nil tree matches
// unconditionally; that is how "always apply" rules and rulesets are
// expressed, and it must be preserved. A missing field never matches
// except under is_empty. Malformed leaves (unknown operator or field
// type) evaluate to false rather than failing the pass.
func (e *Evaluator) Evaluate(node *models.ConditionNode, fields map[string]interface{}) bool {
	if node == nil {
		return true
	}

	if node.IsGroup() {
		switch node.LogicalOperator {
		case models.LogicalAnd:
			for i := range node.Children {
				if !e.Evaluate(&node.Children[i], fields) {
					return false
				}
			}
			return true
		case models.LogicalOr:
			for i := range node.Children {
				if e.Evaluate(&node.Children[i], fields) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}

	return e.evaluateLeaf(node, fields)
}

func (e *Evaluator) evaluateLeaf(node *models.ConditionNode, fields map[string]interface{}) bool {
	fieldValue, exists := fields[node.FieldName]

	switch node.Operator {
	case models.OpIsEmpty:
		return !exists || isEmptyValue(fieldValue)
	case models.OpIsNotEmpty:
		return exists && !isEmptyValue(fieldValue)
	}

	if !exists || fieldValue == nil {
		return false
	}

	switch node.Operator {
	case models.OpEquals:
		return e.equals(node.FieldType, fieldValue, node.Value)
	case models.OpNotEquals:
		return !e.equals(node.FieldType, fieldValue, node.Value)
	case models.OpGreaterThan:
		cmp, ok := e.compare(node.FieldType, fieldValue, node.Value)
		return ok && cmp > 0
	case models.OpGreaterThanOrEqual:
		cmp, ok := e.compare(node.FieldType, fieldValue, node.Value)
		return ok && cmp >= 0
	case models.OpLessThan:
		cmp, ok := e.compare(node.FieldType, fieldValue, node.Value)
		return ok && cmp < 0
	case models.OpLessThanOrEqual:
		cmp, ok := e.compare(node.FieldType, fieldValue, node.Value)
		return ok && cmp <= 0
	case models.OpIn:
		return e.in(node.FieldType, fieldValue, node.Value)
	case models.OpNotIn:
		return !e.in(node.FieldType, fieldValue, node.Value)
	case models.OpContains:
		return e.contains(fieldValue, node.Value)
	case models.OpNotContains:
		return !e.contains(fieldValue, node.Value)
	default:
		// Unknown operator: treated as non-match, reported on the
		// validation path instead of failing the evaluation pass.
		return false
	}
}

// equals compares two values under the leaf's declared field type.
func (e *Evaluator) equals(ft models.FieldType, a, b interface{}) bool {
	switch ft {
	case models.FieldTypeNumber:
		af, aok := toFloat64(a)
		bf, bok := toFloat64(b)
		return aok && bok && af == bf
	case models.FieldTypeBoolean:
		ab, aok := toBool(a)
		bb, bok := toBool(b)
		return aok && bok && ab == bb
	case models.FieldTypeDate:
		at, aok := toTime(a)
		bt, bok := toTime(b)
		return aok && bok && at.Equal(bt)
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

// compare returns -1/0/1 for ordered field types. Only numbers and
// dates order; everything else reports not-comparable.
func (e *Evaluator) compare(ft models.FieldType, a, b interface{}) (int, bool) {
	switch ft {
	case models.FieldTypeDate:
		at, aok := toTime(a)
		bt, bok := toTime(b)
		if !aok || !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	default:
		af, aok := toFloat64(a)
		bf, bok := toFloat64(b)
		if !aok || !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
}

// in checks membership of the field value in the condition's list.
func (e *Evaluator) in(ft models.FieldType, value, list interface{}) bool {
	switch items := list.(type) {
	case []interface{}:
		for _, item := range items {
			if e.equals(ft, value, item) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if e.equals(ft, value, item) {
				return true
			}
		}
	}
	return false
}

// contains checks substring containment for strings and membership for
// list-valued fields.
func (e *Evaluator) contains(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	case []interface{}:
		needleStr := fmt.Sprintf("%v", needle)
		for _, item := range h {
			if fmt.Sprintf("%v", item) == needleStr {
				return true
			}
		}
	case []string:
		needleStr := fmt.Sprintf("%v", needle)
		for _, item := range h {
			if item == needleStr {
				return true
			}
		}
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// toFloat64 converts numeric types (and numeric strings, which JSONB
// round-trips produce) to float64.
func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// toTime accepts RFC 3339 timestamps and plain dates.
func toTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
