package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
)

func defWithRules(rules ...models.Rule) *models.RulesetDefinition {
	return &models.RulesetDefinition{
		Groups: []models.RuleGroup{
			{ID: uuid.New(), Name: "group", Rules: rules},
		},
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name          string
		def           *models.RulesetDefinition
		wantErr       string
		wantMalformed bool
	}{
		{
			name: "valid definition",
			def: defWithRules(models.Rule{
				ID:       uuid.New(),
				Name:     "vram premium",
				IsActive: true,
				ConditionTree: &models.ConditionNode{
					FieldName: "gpu_vram_gb",
					FieldType: models.FieldTypeNumber,
					Operator:  models.OpGreaterThanOrEqual,
					Value:     12,
				},
				Action: models.RuleAction{Type: models.ActionFixed, Amount: 100},
			}),
		},
		{
			name: "unnamed group",
			def: &models.RulesetDefinition{
				Groups: []models.RuleGroup{{ID: uuid.New()}},
			},
			wantErr: "has no name",
		},
		{
			name: "unnamed rule",
			def: defWithRules(models.Rule{
				ID:     uuid.New(),
				Action: models.RuleAction{Type: models.ActionFixed},
			}),
			wantErr: "has no name",
		},
		{
			name: "malformed condition tree",
			def: defWithRules(models.Rule{
				ID:   uuid.New(),
				Name: "bad tree",
				ConditionTree: &models.ConditionNode{
					FieldName: "gpu_model",
					FieldType: models.FieldTypeString,
					Operator:  "matches_regex",
				},
				Action: models.RuleAction{Type: models.ActionFixed},
			}),
			wantErr:       "unknown operator",
			wantMalformed: true,
		},
		{
			name: "malformed scope",
			def: &models.RulesetDefinition{
				ScopeConditions: &models.ConditionNode{LogicalOperator: "xor"},
			},
			wantErr:       "scope conditions",
			wantMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDefinition(tt.def)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			// Broken condition trees are distinguishable from other
			// validation failures.
			assert.Equal(t, tt.wantMalformed, errors.Is(err, engine.ErrMalformedCondition))
		})
	}
}

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  models.RuleAction
		wantErr bool
	}{
		{name: "fixed", action: models.RuleAction{Type: models.ActionFixed, Amount: -50}},
		{name: "percentage with base field", action: models.RuleAction{Type: models.ActionPercentage, Percentage: 0.1, BaseField: "base_price"}},
		{name: "percentage without base field", action: models.RuleAction{Type: models.ActionPercentage, Percentage: 0.1}, wantErr: true},
		{name: "formula", action: models.RuleAction{Type: models.ActionFormula, Formula: json.RawMessage(`{"var": "gpu_vram_gb"}`)}},
		{name: "formula missing document", action: models.RuleAction{Type: models.ActionFormula}, wantErr: true},
		{name: "formula invalid json", action: models.RuleAction{Type: models.ActionFormula, Formula: json.RawMessage(`{"var":`)}, wantErr: true},
		{name: "unknown type", action: models.RuleAction{Type: "multiplier"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAction(&tt.action)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeDefinition(t *testing.T) {
	def := &models.RulesetDefinition{
		// A group that collapses to nothing.
		ScopeConditions: &models.ConditionNode{LogicalOperator: models.LogicalAnd},
		Groups: []models.RuleGroup{
			{
				Name: "new group",
				Rules: []models.Rule{
					{
						Name: "new rule",
						ConditionTree: &models.ConditionNode{
							LogicalOperator: models.LogicalOr,
							Children:        []models.ConditionNode{{LogicalOperator: models.LogicalAnd}},
						},
						Action: models.RuleAction{Type: models.ActionFixed, Amount: 10},
					},
				},
			},
		},
	}

	normalizeDefinition(def)

	assert.Nil(t, def.ScopeConditions, "collapsed scope becomes match-everything")
	assert.NotEqual(t, uuid.Nil, def.Groups[0].ID, "new group gets an id")
	rule := def.Groups[0].Rules[0]
	assert.NotEqual(t, uuid.Nil, rule.ID, "new rule gets an id")
	assert.Nil(t, rule.ConditionTree, "collapsed condition tree becomes match-everything")
}

func TestGuardForeignKeyRules(t *testing.T) {
	fkRuleID := uuid.New()
	fkRule := models.Rule{
		ID:       fkRuleID,
		Name:     "ram capacity delta",
		IsActive: true,
		Action:   models.RuleAction{Type: models.ActionFixed, Amount: 25},
		Metadata: models.RuleMetadata{IsForeignKeyRule: true},
	}
	userRule := models.Rule{
		ID:       uuid.New(),
		Name:     "user rule",
		IsActive: true,
		Action:   models.RuleAction{Type: models.ActionFixed, Amount: 10},
	}

	old := defWithRules(fkRule, userRule)

	t.Run("untouched foreign key rule passes", func(t *testing.T) {
		changed := userRule
		changed.Action.Amount = 99
		updated := defWithRules(fkRule, changed)

		assert.NoError(t, guardForeignKeyRules(old, updated))
	})

	t.Run("editing a foreign key rule is rejected", func(t *testing.T) {
		edited := fkRule
		edited.Action.Amount = 999
		updated := defWithRules(edited, userRule)

		err := guardForeignKeyRules(old, updated)
		assert.True(t, errors.Is(err, ErrForeignKeyRuleEdit))
	})

	t.Run("removing a foreign key rule is rejected", func(t *testing.T) {
		updated := defWithRules(userRule)

		err := guardForeignKeyRules(old, updated)
		assert.True(t, errors.Is(err, ErrForeignKeyRuleEdit))
	})

	t.Run("metadata-only difference is not an edit", func(t *testing.T) {
		sameContent := fkRule
		sameContent.Metadata.Hydrated = true
		updated := defWithRules(sameContent, userRule)

		assert.NoError(t, guardForeignKeyRules(old, updated))
	})
}

func TestHydrateBaselines(t *testing.T) {
	baselineID := uuid.New()
	baseline := models.Rule{
		ID:       baselineID,
		Name:     "default condition discount",
		IsActive: true,
		Action:   models.RuleAction{Type: models.ActionPercentage, Percentage: -0.1, BaseField: "base_price"},
		Metadata: models.RuleMetadata{BaselinePlaceholder: true},
	}

	old := defWithRules(baseline)

	t.Run("untouched placeholder stays unhydrated", func(t *testing.T) {
		updated := defWithRules(baseline)
		hydrateBaselines(old, updated)
		assert.False(t, updated.Groups[0].Rules[0].Metadata.Hydrated)
	})

	t.Run("first edit hydrates", func(t *testing.T) {
		edited := baseline
		edited.Action.Percentage = -0.2
		updated := defWithRules(edited)

		hydrateBaselines(old, updated)
		assert.True(t, updated.Groups[0].Rules[0].Metadata.Hydrated)
	})

	t.Run("already hydrated rule is left alone", func(t *testing.T) {
		hydrated := baseline
		hydrated.Metadata.Hydrated = true
		hydrated.Action.Percentage = -0.3
		updated := defWithRules(hydrated)

		hydrateBaselines(old, updated)
		assert.True(t, updated.Groups[0].Rules[0].Metadata.Hydrated)
	})
}
