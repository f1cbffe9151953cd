package engine

import (
	"encoding/json"
	"testing"

	"github.com/dealscope/valuation-engine/internal/models"
)

func TestResolveActions(t *testing.T) {
	resolver := NewResolver(NewEvaluator())

	fields := map[string]interface{}{
		"base_price":  1000.0,
		"gpu_vram_gb": 16.0,
	}

	tests := []struct {
		name        string
		rule        models.Rule
		wantMatched bool
		wantInert   bool
		wantDelta   float64
	}{
		{
			name: "fixed positive delta",
			rule: models.Rule{
				IsActive: true,
				Action:   models.RuleAction{Type: models.ActionFixed, Amount: 50},
			},
			wantMatched: true,
			wantDelta:   50,
		},
		{
			name: "fixed negative delta",
			rule: models.Rule{
				IsActive: true,
				Action:   models.RuleAction{Type: models.ActionFixed, Amount: -75},
			},
			wantMatched: true,
			wantDelta:   -75,
		},
		{
			name: "percentage of base field",
			rule: models.Rule{
				IsActive: true,
				Action: models.RuleAction{
					Type:       models.ActionPercentage,
					Percentage: -0.15,
					BaseField:  "base_price",
				},
			},
			wantMatched: true,
			wantDelta:   -150,
		},
		{
			name: "percentage with missing base field is inert",
			rule: models.Rule{
				IsActive: true,
				Action: models.RuleAction{
					Type:       models.ActionPercentage,
					Percentage: 0.1,
					BaseField:  "no_such_field",
				},
			},
			wantMatched: true,
			wantInert:   true,
		},
		{
			name: "formula multiplies field",
			rule: models.Rule{
				IsActive: true,
				Action: models.RuleAction{
					Type:    models.ActionFormula,
					Formula: json.RawMessage(`{"*": [{"var": "gpu_vram_gb"}, 12.5]}`),
				},
			},
			wantMatched: true,
			wantDelta:   200,
		},
		{
			name: "formula resolving to null is inert",
			rule: models.Rule{
				IsActive: true,
				Action: models.RuleAction{
					Type:    models.ActionFormula,
					Formula: json.RawMessage(`{"var": "no_such_field"}`),
				},
			},
			wantMatched: true,
			wantInert:   true,
		},
		{
			name: "formula yielding non-numeric result is inert",
			rule: models.Rule{
				IsActive: true,
				Action: models.RuleAction{
					Type:    models.ActionFormula,
					Formula: json.RawMessage(`{"cat": ["a", "b"]}`),
				},
			},
			wantMatched: true,
			wantInert:   true,
		},
		{
			name: "unknown action type is inert",
			rule: models.Rule{
				IsActive: true,
				Action:   models.RuleAction{Type: "multiplier"},
			},
			wantMatched: true,
			wantInert:   true,
		},
		{
			name: "inactive rule never fires",
			rule: models.Rule{
				IsActive: false,
				Action:   models.RuleAction{Type: models.ActionFixed, Amount: 50},
			},
		},
		{
			name: "condition miss",
			rule: models.Rule{
				IsActive: true,
				ConditionTree: &models.ConditionNode{
					FieldName: "gpu_vram_gb",
					FieldType: models.FieldTypeNumber,
					Operator:  models.OpGreaterThan,
					Value:     64,
				},
				Action: models.RuleAction{Type: models.ActionFixed, Amount: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := resolver.Resolve(&tt.rule, fields)
			if outcome.Matched != tt.wantMatched {
				t.Errorf("Matched = %v, want %v", outcome.Matched, tt.wantMatched)
			}
			if outcome.Inert != tt.wantInert {
				t.Errorf("Inert = %v, want %v", outcome.Inert, tt.wantInert)
			}
			if !tt.wantInert && outcome.Delta != tt.wantDelta {
				t.Errorf("Delta = %v, want %v", outcome.Delta, tt.wantDelta)
			}
			if tt.wantInert && outcome.Delta != 0 {
				t.Errorf("inert outcome carries delta %v", outcome.Delta)
			}
		})
	}
}
