package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dealscope/valuation-engine/internal/models"
)

// ValidationResult holds the outcome of validating a ruleset file.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Rules    int      `json:"rules"`
	Groups   int      `json:"groups"`
}

// rulesetFile is the on-disk shape accepted by the validate command.
type rulesetFile struct {
	Name       string                   `json:"name"`
	Priority   int                      `json:"priority"`
	Definition models.RulesetDefinition `json:"definition"`
}

// ValidateRulesetFile parses and validates a ruleset definition file.
func ValidateRulesetFile(filename string) (*ValidationResult, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	result := &ValidationResult{Valid: true}

	var file rulesetFile
	if err := json.Unmarshal(data, &file); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("invalid JSON: %v", err))
		return result, nil
	}

	if file.Name == "" {
		result.addError("ruleset has no name")
	}
	if err := file.Definition.ScopeConditions.Validate(); err != nil {
		result.addError(fmt.Sprintf("scope conditions: %v", err))
	}

	result.Groups = len(file.Definition.Groups)
	for gi := range file.Definition.Groups {
		group := &file.Definition.Groups[gi]
		if group.Name == "" {
			result.addError(fmt.Sprintf("group %d has no name", gi+1))
		}
		if len(group.Rules) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("group %q has no rules", group.Name))
		}
		result.Rules += len(group.Rules)

		for ri := range group.Rules {
			rule := &group.Rules[ri]
			if rule.Name == "" {
				result.addError(fmt.Sprintf("group %q rule %d has no name", group.Name, ri+1))
			}
			if err := rule.ConditionTree.Validate(); err != nil {
				result.addError(fmt.Sprintf("rule %q: %v", rule.Name, err))
			}
			if err := validateAction(rule); err != nil {
				result.addError(fmt.Sprintf("rule %q: %v", rule.Name, err))
			}
			if rule.ConditionTree.Normalize() == nil && rule.ConditionTree != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("rule %q condition collapses to match-everything", rule.Name))
			}
		}
	}

	return result, nil
}

func validateAction(rule *models.Rule) error {
	switch rule.Action.Type {
	case models.ActionFixed:
		return nil
	case models.ActionPercentage:
		if rule.Action.BaseField == "" {
			return fmt.Errorf("percentage action requires a base field")
		}
		return nil
	case models.ActionFormula:
		if len(rule.Action.Formula) == 0 {
			return fmt.Errorf("formula action requires a formula document")
		}
		if !json.Valid(rule.Action.Formula) {
			return fmt.Errorf("formula action carries invalid JSON")
		}
		return nil
	default:
		return fmt.Errorf("unknown action type: %q", rule.Action.Type)
	}
}

func (r *ValidationResult) addError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}
