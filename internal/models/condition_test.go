package models

import (
	"encoding/json"
	"testing"
)

func TestConditionNodeJSONRoundTrip(t *testing.T) {
	tree := &ConditionNode{
		LogicalOperator: LogicalAnd,
		Children: []ConditionNode{
			{
				FieldName: "gpu_model",
				FieldType: FieldTypeString,
				Operator:  OpEquals,
				Value:     "RTX 4080",
			},
			{
				LogicalOperator: LogicalOr,
				Children: []ConditionNode{
					{FieldName: "gpu_vram_gb", FieldType: FieldTypeNumber, Operator: OpGreaterThanOrEqual, Value: 12.0},
					{FieldName: "condition_grade", FieldType: FieldTypeEnum, Operator: OpIn, Value: []interface{}{"new", "refurbished"}},
				},
			},
		},
	}

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ConditionNode
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !decoded.IsGroup() || decoded.LogicalOperator != LogicalAnd {
		t.Fatalf("decoded root is not an and-group: %+v", decoded)
	}
	if len(decoded.Children) != 2 {
		t.Fatalf("decoded children = %d, want 2", len(decoded.Children))
	}
	leaf := decoded.Children[0]
	if leaf.IsGroup() || leaf.Operator != OpEquals || leaf.Value != "RTX 4080" {
		t.Errorf("decoded leaf mismatch: %+v", leaf)
	}
	inner := decoded.Children[1]
	if !inner.IsGroup() || inner.LogicalOperator != LogicalOr || len(inner.Children) != 2 {
		t.Errorf("decoded inner group mismatch: %+v", inner)
	}
}

func TestConditionNodeNormalize(t *testing.T) {
	leaf := ConditionNode{
		FieldName: "gpu_model",
		FieldType: FieldTypeString,
		Operator:  OpIsNotEmpty,
	}

	tests := []struct {
		name string
		tree *ConditionNode
		want func(t *testing.T, got *ConditionNode)
	}{
		{
			name: "nil stays nil",
			tree: nil,
			want: func(t *testing.T, got *ConditionNode) {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
			},
		},
		{
			name: "leaf passes through",
			tree: &leaf,
			want: func(t *testing.T, got *ConditionNode) {
				if got == nil || got.IsGroup() || got.FieldName != "gpu_model" {
					t.Errorf("got %+v, want the leaf unchanged", got)
				}
			},
		},
		{
			name: "empty group collapses to nil",
			tree: &ConditionNode{LogicalOperator: LogicalAnd},
			want: func(t *testing.T, got *ConditionNode) {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
			},
		},
		{
			name: "group of empty groups collapses to nil",
			tree: &ConditionNode{
				LogicalOperator: LogicalOr,
				Children: []ConditionNode{
					{LogicalOperator: LogicalAnd},
					{LogicalOperator: LogicalOr, Children: []ConditionNode{{LogicalOperator: LogicalAnd}}},
				},
			},
			want: func(t *testing.T, got *ConditionNode) {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
			},
		},
		{
			name: "empty siblings are pruned, leaf survives",
			tree: &ConditionNode{
				LogicalOperator: LogicalAnd,
				Children: []ConditionNode{
					{LogicalOperator: LogicalOr},
					leaf,
				},
			},
			want: func(t *testing.T, got *ConditionNode) {
				if got == nil || !got.IsGroup() || len(got.Children) != 1 {
					t.Fatalf("got %+v, want group with one child", got)
				}
				if got.Children[0].FieldName != "gpu_model" {
					t.Errorf("surviving child = %+v, want the leaf", got.Children[0])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, tt.tree.Normalize())
		})
	}
}

func TestConditionNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		tree    *ConditionNode
		wantErr bool
	}{
		{
			name: "nil tree is valid",
			tree: nil,
		},
		{
			name: "valid leaf",
			tree: &ConditionNode{FieldName: "gpu_model", FieldType: FieldTypeString, Operator: OpEquals, Value: "RTX 4080"},
		},
		{
			name: "valid group",
			tree: &ConditionNode{
				LogicalOperator: LogicalAnd,
				Children: []ConditionNode{
					{FieldName: "gpu_vram_gb", FieldType: FieldTypeNumber, Operator: OpGreaterThan, Value: 8},
				},
			},
		},
		{
			name:    "leaf with unknown operator",
			tree:    &ConditionNode{FieldName: "gpu_model", FieldType: FieldTypeString, Operator: "matches_regex"},
			wantErr: true,
		},
		{
			name:    "leaf with unknown field type",
			tree:    &ConditionNode{FieldName: "gpu_model", FieldType: "decimal", Operator: OpEquals},
			wantErr: true,
		},
		{
			name:    "leaf missing field name",
			tree:    &ConditionNode{FieldType: FieldTypeString, Operator: OpEquals},
			wantErr: true,
		},
		{
			name: "leaf with children",
			tree: &ConditionNode{
				FieldName: "gpu_model",
				FieldType: FieldTypeString,
				Operator:  OpEquals,
				Children:  []ConditionNode{{FieldName: "x", FieldType: FieldTypeString, Operator: OpEquals}},
			},
			wantErr: true,
		},
		{
			name:    "group without children",
			tree:    &ConditionNode{LogicalOperator: LogicalAnd},
			wantErr: true,
		},
		{
			name:    "group with unknown logical operator",
			tree:    &ConditionNode{LogicalOperator: "xor", Children: []ConditionNode{{FieldName: "x", FieldType: FieldTypeString, Operator: OpEquals}}},
			wantErr: true,
		},
		{
			name: "group carrying leaf fields",
			tree: &ConditionNode{
				LogicalOperator: LogicalAnd,
				FieldName:       "gpu_model",
				Children:        []ConditionNode{{FieldName: "x", FieldType: FieldTypeString, Operator: OpEquals}},
			},
			wantErr: true,
		},
		{
			name: "invalid nested child surfaces",
			tree: &ConditionNode{
				LogicalOperator: LogicalOr,
				Children: []ConditionNode{
					{FieldName: "gpu_model", FieldType: FieldTypeString, Operator: OpEquals},
					{LogicalOperator: LogicalAnd},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tree.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNegatedOperatorTable(t *testing.T) {
	operators := []Operator{
		OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpIn, OpNotIn,
		OpContains, OpNotContains,
		OpIsEmpty, OpIsNotEmpty,
	}

	for _, op := range operators {
		neg, ok := NegatedOperator(op)
		if !ok {
			t.Errorf("operator %q has no negation", op)
			continue
		}
		// Negation is an involution.
		back, ok := NegatedOperator(neg)
		if !ok || back != op {
			t.Errorf("NegatedOperator(%q) = %q, does not round-trip (got %q back)", op, neg, back)
		}
		if neg == op {
			t.Errorf("operator %q negates to itself", op)
		}
	}

	if _, ok := NegatedOperator("matches_regex"); ok {
		t.Error("unknown operator must not have a negation")
	}
	if KnownOperator("matches_regex") {
		t.Error("unknown operator reported as known")
	}
}
