package models

import (
	"testing"

	"github.com/google/uuid"
)

// The definition document, condition trees included, is persisted as
// one JSONB value through RulesetDefinition's driver methods.
func TestRulesetDefinitionJSONBRoundTrip(t *testing.T) {
	ruleID := uuid.New()
	def := RulesetDefinition{
		ScopeConditions: &ConditionNode{
			FieldName: "form_factor",
			FieldType: FieldTypeEnum,
			Operator:  OpEquals,
			Value:     "mini-itx",
		},
		Groups: []RuleGroup{
			{
				ID:   uuid.New(),
				Name: "GPU adjustments",
				Rules: []Rule{
					{
						ID:       ruleID,
						Name:     "High VRAM premium",
						IsActive: true,
						ConditionTree: &ConditionNode{
							FieldName: "gpu_vram_gb",
							FieldType: FieldTypeNumber,
							Operator:  OpGreaterThanOrEqual,
							Value:     16.0,
						},
						Action: RuleAction{Type: ActionFixed, Amount: 120},
					},
				},
			},
		},
	}

	raw, err := def.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var loaded RulesetDefinition
	if err := loaded.Scan(raw); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if loaded.ScopeConditions == nil || loaded.ScopeConditions.Value != "mini-itx" {
		t.Fatalf("scope conditions did not survive: %+v", loaded.ScopeConditions)
	}
	if len(loaded.Groups) != 1 || len(loaded.Groups[0].Rules) != 1 {
		t.Fatalf("groups did not survive: %+v", loaded.Groups)
	}
	rule := loaded.Groups[0].Rules[0]
	if rule.ID != ruleID || rule.ConditionTree == nil || rule.ConditionTree.Operator != OpGreaterThanOrEqual {
		t.Errorf("rule did not survive: %+v", rule)
	}
	if rule.Action.Type != ActionFixed || rule.Action.Amount != 120 {
		t.Errorf("action did not survive: %+v", rule.Action)
	}
}
