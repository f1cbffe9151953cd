package models

import (
	"fmt"
)

// FieldType tells the evaluator how to coerce a listing field before comparing.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeDate    FieldType = "date"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
)

// LogicalOperator joins the children of a condition group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// negatedOperators is the closed table of operator pairs. Negation is
// expressed by swapping a leaf's operator, never by a NOT node.
var negatedOperators = map[Operator]Operator{
	OpEquals:             OpNotEquals,
	OpNotEquals:          OpEquals,
	OpGreaterThan:        OpLessThanOrEqual,
	OpLessThanOrEqual:    OpGreaterThan,
	OpGreaterThanOrEqual: OpLessThan,
	OpLessThan:           OpGreaterThanOrEqual,
	OpIn:                 OpNotIn,
	OpNotIn:              OpIn,
	OpContains:           OpNotContains,
	OpNotContains:        OpContains,
	OpIsEmpty:            OpIsNotEmpty,
	OpIsNotEmpty:         OpIsEmpty,
}

// NegatedOperator returns the negated counterpart of op.
func NegatedOperator(op Operator) (Operator, bool) {
	neg, ok := negatedOperators[op]
	return neg, ok
}

// KnownOperator reports whether op belongs to the supported set.
func KnownOperator(op Operator) bool {
	_, ok := negatedOperators[op]
	return ok
}

// ConditionNode is a tagged union: either a leaf comparison
// (field_name/field_type/operator/value) or a group
// (logical_operator/children). A leaf never has children; a group
// always has at least one child after normalization.
type ConditionNode struct {
	FieldName string      `json:"field_name,omitempty"`
	FieldType FieldType   `json:"field_type,omitempty"`
	Operator  Operator    `json:"operator,omitempty"`
	Value     interface{} `json:"value,omitempty"`

	LogicalOperator LogicalOperator `json:"logical_operator,omitempty"`
	Children        []ConditionNode `json:"children,omitempty"`
}

// IsGroup reports whether the node is a boolean group.
func (n *ConditionNode) IsGroup() bool {
	return n.LogicalOperator != ""
}

// Normalize prunes empty groups bottom-up and returns the surviving
// node, or nil when the whole tree collapses. A nil tree is the
// "always matches" condition and must stay representable.
func (n *ConditionNode) Normalize() *ConditionNode {
	if n == nil {
		return nil
	}
	if !n.IsGroup() {
		return n
	}

	kept := make([]ConditionNode, 0, len(n.Children))
	for i := range n.Children {
		if child := n.Children[i].Normalize(); child != nil {
			kept = append(kept, *child)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &ConditionNode{LogicalOperator: n.LogicalOperator, Children: kept}
}

// Validate checks structural invariants: leaves carry a known operator
// and no children, groups carry a known logical operator and at least
// one child.
func (n *ConditionNode) Validate() error {
	if n == nil {
		return nil
	}

	if n.IsGroup() {
		if n.LogicalOperator != LogicalAnd && n.LogicalOperator != LogicalOr {
			return fmt.Errorf("unknown logical operator: %q", n.LogicalOperator)
		}
		if n.FieldName != "" || n.Operator != "" {
			return fmt.Errorf("condition group must not carry leaf fields")
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("condition group has no children")
		}
		for i := range n.Children {
			if err := n.Children[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	if len(n.Children) > 0 {
		return fmt.Errorf("condition leaf must not have children")
	}
	if n.FieldName == "" {
		return fmt.Errorf("condition leaf has no field name")
	}
	if !KnownOperator(n.Operator) {
		return fmt.Errorf("unknown operator: %q", n.Operator)
	}
	switch n.FieldType {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeEnum, FieldTypeDate:
	default:
		return fmt.Errorf("unknown field type: %q", n.FieldType)
	}
	return nil
}
