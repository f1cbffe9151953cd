package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

func fixedRule(id uuid.UUID, name string, amount float64) models.Rule {
	return models.Rule{
		ID:       id,
		Name:     name,
		IsActive: true,
		Action:   models.RuleAction{Type: models.ActionFixed, Amount: amount},
	}
}

func singleRuleRuleset(id uuid.UUID, priority int, rule models.Rule) models.Ruleset {
	return models.Ruleset{
		ID:       id,
		Priority: priority,
		IsActive: true,
		Version:  1,
		Definition: models.RulesetDefinition{
			Groups: []models.RuleGroup{
				{ID: uuid.New(), Name: "group", Rules: []models.Rule{rule}},
			},
		},
	}
}

func testSnapshot(basePrice float64) models.ListingSnapshot {
	return models.ListingSnapshot{
		ID:        uuid.New(),
		BasePrice: basePrice,
		Fields:    map[string]interface{}{"base_price": basePrice},
	}
}

func TestEvaluateListingAdditiveLayering(t *testing.T) {
	aggregator := NewAggregator()

	rsA := singleRuleRuleset(uuid.New(), 10, fixedRule(uuid.New(), "plus fifty", 50))
	rsB := singleRuleRuleset(uuid.New(), 20, fixedRule(uuid.New(), "minus twenty", -20))

	breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rsB, rsA}, nil)

	if breakdown.AdjustedPrice != 130 {
		t.Fatalf("AdjustedPrice = %v, want 130", breakdown.AdjustedPrice)
	}
	if len(breakdown.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(breakdown.Entries))
	}

	// Lower priority evaluates first regardless of input order.
	if breakdown.Entries[0].RulesetID != rsA.ID {
		t.Errorf("first entry from ruleset %s, want %s", breakdown.Entries[0].RulesetID, rsA.ID)
	}
	if breakdown.Entries[0].RunningTotal != 150 {
		t.Errorf("running total after first rule = %v, want 150", breakdown.Entries[0].RunningTotal)
	}
	if breakdown.RulesFired() != 2 {
		t.Errorf("RulesFired() = %d, want 2", breakdown.RulesFired())
	}
}

func TestEvaluateListingPriorityTieBreaksOnID(t *testing.T) {
	aggregator := NewAggregator()

	idLow := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	idHigh := uuid.MustParse("ffffffff-ffff-4fff-8fff-ffffffffffff")

	rsLow := singleRuleRuleset(idLow, 10, fixedRule(uuid.New(), "first", 10))
	rsHigh := singleRuleRuleset(idHigh, 10, fixedRule(uuid.New(), "second", 20))

	breakdown := aggregator.EvaluateListing(testSnapshot(0), []models.Ruleset{rsHigh, rsLow}, nil)

	if breakdown.Entries[0].RulesetID != idLow {
		t.Errorf("tie-break picked %s first, want %s", breakdown.Entries[0].RulesetID, idLow)
	}
}

func TestEvaluateListingScopeFiltering(t *testing.T) {
	aggregator := NewAggregator()

	inScope := singleRuleRuleset(uuid.New(), 10, fixedRule(uuid.New(), "gpu bonus", 100))
	inScope.Definition.ScopeConditions = &models.ConditionNode{
		FieldName: "gpu_model",
		FieldType: models.FieldTypeString,
		Operator:  models.OpIsNotEmpty,
	}

	outOfScope := singleRuleRuleset(uuid.New(), 20, fixedRule(uuid.New(), "never", 999))
	outOfScope.Definition.ScopeConditions = &models.ConditionNode{
		FieldName: "form_factor",
		FieldType: models.FieldTypeString,
		Operator:  models.OpEquals,
		Value:     "laptop",
	}

	inactive := singleRuleRuleset(uuid.New(), 30, fixedRule(uuid.New(), "disabled", 999))
	inactive.IsActive = false

	snapshot := testSnapshot(100)
	snapshot.Fields["gpu_model"] = "RTX 4080"

	breakdown := aggregator.EvaluateListing(snapshot, []models.Ruleset{inScope, outOfScope, inactive}, nil)

	if breakdown.AdjustedPrice != 200 {
		t.Fatalf("AdjustedPrice = %v, want 200", breakdown.AdjustedPrice)
	}
	if len(breakdown.Entries) != 1 {
		t.Fatalf("entries = %d, want 1 (out-of-scope rulesets produce none)", len(breakdown.Entries))
	}

	// All input versions are captured, including filtered rulesets, so
	// staleness checks cover activation toggles too.
	if len(breakdown.Versions) != 3 {
		t.Errorf("versions captured = %d, want 3", len(breakdown.Versions))
	}
}

func TestEvaluateListingClampsAtZero(t *testing.T) {
	aggregator := NewAggregator()

	rs := singleRuleRuleset(uuid.New(), 10, fixedRule(uuid.New(), "big discount", -500))

	breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, nil)

	if breakdown.AdjustedPrice != 0 {
		t.Fatalf("AdjustedPrice = %v, want 0", breakdown.AdjustedPrice)
	}

	last := breakdown.Entries[len(breakdown.Entries)-1]
	if last.Reason != models.EntryReasonClamped {
		t.Fatalf("terminal entry reason = %q, want %q", last.Reason, models.EntryReasonClamped)
	}
	if last.RuleID != nil {
		t.Errorf("clamp entry must not carry a rule id")
	}
	if last.Delta != 400 {
		t.Errorf("clamp delta = %v, want 400", last.Delta)
	}
	if last.RunningTotal != 0 {
		t.Errorf("clamp running total = %v, want 0", last.RunningTotal)
	}
}

func TestEvaluateListingOverrides(t *testing.T) {
	aggregator := NewAggregator()

	ruleID := uuid.New()
	rulesetID := uuid.New()
	rs := singleRuleRuleset(rulesetID, 10, fixedRule(ruleID, "adjustable", 50))

	t.Run("disabled override suppresses the rule", func(t *testing.T) {
		overrides := models.NewOverrideSet([]models.ValuationOverride{
			{RulesetID: rulesetID, RuleID: &ruleID, Mode: models.OverrideModeAuto, Disabled: true},
		})

		breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, overrides)

		if breakdown.AdjustedPrice != 100 {
			t.Fatalf("AdjustedPrice = %v, want 100", breakdown.AdjustedPrice)
		}
		if breakdown.Entries[0].Reason != models.EntryReasonOverrideDisabled {
			t.Errorf("entry reason = %q, want %q", breakdown.Entries[0].Reason, models.EntryReasonOverrideDisabled)
		}
	})

	t.Run("static override pins the delta", func(t *testing.T) {
		pinned := 75.0
		overrides := models.NewOverrideSet([]models.ValuationOverride{
			{RulesetID: rulesetID, RuleID: &ruleID, Mode: models.OverrideModeStatic, StaticValue: &pinned},
		})

		breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, overrides)

		if breakdown.AdjustedPrice != 175 {
			t.Fatalf("AdjustedPrice = %v, want 175", breakdown.AdjustedPrice)
		}
		if breakdown.Entries[0].Reason != models.EntryReasonOverrideStatic {
			t.Errorf("entry reason = %q, want %q", breakdown.Entries[0].Reason, models.EntryReasonOverrideStatic)
		}
	})

	t.Run("rule override wins over ruleset override", func(t *testing.T) {
		pinned := 10.0
		overrides := models.NewOverrideSet([]models.ValuationOverride{
			{RulesetID: rulesetID, Mode: models.OverrideModeAuto, Disabled: true},
			{RulesetID: rulesetID, RuleID: &ruleID, Mode: models.OverrideModeStatic, StaticValue: &pinned},
		})

		breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, overrides)

		if breakdown.AdjustedPrice != 110 {
			t.Fatalf("AdjustedPrice = %v, want 110", breakdown.AdjustedPrice)
		}
	})

	t.Run("ruleset-level static pin applies once, not per rule", func(t *testing.T) {
		multi := models.Ruleset{
			ID:       rulesetID,
			Priority: 10,
			IsActive: true,
			Version:  1,
			Definition: models.RulesetDefinition{
				Groups: []models.RuleGroup{
					{ID: uuid.New(), Name: "group", Rules: []models.Rule{
						fixedRule(uuid.New(), "first", 50),
						fixedRule(uuid.New(), "second", 50),
						fixedRule(uuid.New(), "third", 50),
					}},
				},
			},
		}

		pinned := 30.0
		overrides := models.NewOverrideSet([]models.ValuationOverride{
			{RulesetID: rulesetID, Mode: models.OverrideModeStatic, StaticValue: &pinned},
		})

		breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{multi}, overrides)

		if breakdown.AdjustedPrice != 130 {
			t.Fatalf("AdjustedPrice = %v, want 130 (pin must not multiply by rule count)", breakdown.AdjustedPrice)
		}
		if len(breakdown.Entries) != 1 {
			t.Fatalf("entries = %d, want 1 (the pin replaces the ruleset's contribution)", len(breakdown.Entries))
		}
		entry := breakdown.Entries[0]
		if entry.Reason != models.EntryReasonOverrideStatic {
			t.Errorf("entry reason = %q, want %q", entry.Reason, models.EntryReasonOverrideStatic)
		}
		if entry.RuleID != nil {
			t.Errorf("ruleset-level pin entry must not carry a rule id")
		}
		if entry.Delta != 30 {
			t.Errorf("entry delta = %v, want 30", entry.Delta)
		}
	})

	t.Run("ruleset-level disable covers every rule", func(t *testing.T) {
		overrides := models.NewOverrideSet([]models.ValuationOverride{
			{RulesetID: rulesetID, Mode: models.OverrideModeAuto, Disabled: true},
		})

		breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, overrides)

		if breakdown.AdjustedPrice != 100 {
			t.Fatalf("AdjustedPrice = %v, want 100", breakdown.AdjustedPrice)
		}
	})
}

func TestEvaluateListingInactiveRuleEntry(t *testing.T) {
	aggregator := NewAggregator()

	rule := fixedRule(uuid.New(), "dormant", 50)
	rule.IsActive = false
	rs := singleRuleRuleset(uuid.New(), 10, rule)

	breakdown := aggregator.EvaluateListing(testSnapshot(100), []models.Ruleset{rs}, nil)

	if breakdown.AdjustedPrice != 100 {
		t.Fatalf("AdjustedPrice = %v, want 100", breakdown.AdjustedPrice)
	}
	if breakdown.Entries[0].Reason != models.EntryReasonInactive {
		t.Errorf("entry reason = %q, want %q", breakdown.Entries[0].Reason, models.EntryReasonInactive)
	}
	if breakdown.RulesFired() != 0 {
		t.Errorf("RulesFired() = %d, want 0", breakdown.RulesFired())
	}
}

func TestEvaluateListingEmptyRulesets(t *testing.T) {
	aggregator := NewAggregator()

	breakdown := aggregator.EvaluateListing(testSnapshot(250), nil, nil)

	if breakdown.AdjustedPrice != 250 {
		t.Fatalf("AdjustedPrice = %v, want base price 250", breakdown.AdjustedPrice)
	}
	if len(breakdown.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(breakdown.Entries))
	}
}
