package engine

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/dealscope/valuation-engine/internal/models"
)

// RuleOutcome is the result of resolving one rule against a listing.
// Inert marks a rule that matched but could not produce a delta
// (missing referenced field, division by zero); it is distinguishable
// from "not matched" for audit purposes.
type RuleOutcome struct {
	Matched bool
	Inert   bool
	Delta   float64
}

// Resolver decides whether a rule applies and computes its price delta.
type Resolver struct {
	evaluator *Evaluator
}

// NewResolver creates a new rule resolver.
func NewResolver(evaluator *Evaluator) *Resolver {
	return &Resolver{evaluator: evaluator}
}

// Resolve evaluates the rule's condition tree and, on a match, computes
// the delta from its action. Inactive rules never fire, regardless of
// their conditions.
func (r *Resolver) Resolve(rule *models.Rule, fields map[string]interface{}) RuleOutcome {
	if !rule.IsActive {
		return RuleOutcome{}
	}

	if !r.evaluator.Evaluate(rule.ConditionTree, fields) {
		return RuleOutcome{}
	}

	switch rule.Action.Type {
	case models.ActionFixed:
		return RuleOutcome{Matched: true, Delta: rule.Action.Amount}

	case models.ActionPercentage:
		base, ok := fields[rule.Action.BaseField]
		if !ok {
			return RuleOutcome{Matched: true, Inert: true}
		}
		baseValue, ok := toFloat64(base)
		if !ok {
			return RuleOutcome{Matched: true, Inert: true}
		}
		return RuleOutcome{Matched: true, Delta: rule.Action.Percentage * baseValue}

	case models.ActionFormula:
		delta, ok := r.applyFormula(rule.Action.Formula, fields)
		if !ok {
			return RuleOutcome{Matched: true, Inert: true}
		}
		return RuleOutcome{Matched: true, Delta: delta}

	default:
		// Unknown action type contributes nothing but stays auditable.
		return RuleOutcome{Matched: true, Inert: true}
	}
}

// applyFormula evaluates a JSONLogic document over the listing fields.
// Any evaluation error, non-numeric result, or non-finite value
// (division by zero) renders the rule inert.
func (r *Resolver) applyFormula(formula json.RawMessage, fields map[string]interface{}) (float64, bool) {
	if len(formula) == 0 {
		return 0, false
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return 0, false
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(formula), bytes.NewReader(data), &result); err != nil {
		return 0, false
	}

	delta, err := strconv.ParseFloat(strings.TrimSpace(result.String()), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, false
	}
	return delta, true
}
