package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionType represents the kind of price adjustment a rule applies.
type ActionType string

const (
	ActionFixed      ActionType = "fixed"
	ActionPercentage ActionType = "percentage"
	ActionFormula    ActionType = "formula"
)

// RuleAction is the adjustment a matched rule contributes.
//
// Fixed actions add Amount (signed). Percentage actions add
// Percentage * listingFields[BaseField]. Formula actions evaluate a
// JSONLogic document against the listing fields; the result must be
// numeric.
type RuleAction struct {
	Type       ActionType      `json:"type"`
	Amount     float64         `json:"amount,omitempty"`
	Percentage float64         `json:"percentage,omitempty"`
	BaseField  string          `json:"base_field,omitempty"`
	Formula    json.RawMessage `json:"formula,omitempty"`
}

// RuleMetadata carries system flags on a rule.
type RuleMetadata struct {
	// IsForeignKeyRule marks system-generated rules tied to a catalog
	// reference (e.g. RAM capacity -> price delta). Read-only for users.
	IsForeignKeyRule bool `json:"is_foreign_key_rule,omitempty"`
	// BaselinePlaceholder marks a default rule that has not been
	// materialized yet; Hydrated flips on first user edit.
	BaselinePlaceholder bool `json:"baseline_placeholder,omitempty"`
	Hydrated            bool `json:"hydrated,omitempty"`
}

// Rule is a single condition-gated price adjustment.
type Rule struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	IsActive      bool           `json:"is_active"`
	ConditionTree *ConditionNode `json:"condition_tree,omitempty"`
	Action        RuleAction     `json:"action"`
	Metadata      RuleMetadata   `json:"metadata,omitempty"`
}

// RuleGroup is an organizational grouping of rules inside a ruleset.
// It holds no conditions or actions of its own; its declared order is
// the evaluation order.
type RuleGroup struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category,omitempty"`
	Rules    []Rule    `json:"rules"`
}

// RulesetDefinition is the structural body of a ruleset, stored as one
// JSONB document. Any edit to it is a structural mutation and bumps the
// ruleset version.
type RulesetDefinition struct {
	ScopeConditions *ConditionNode `json:"scope_conditions,omitempty"`
	Groups          []RuleGroup    `json:"groups"`
}

// Ruleset is a named, prioritized, scoped container of rule groups.
// Lower priority numbers evaluate first; ties break on ascending id.
type Ruleset struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	Name       string            `json:"name" db:"name"`
	Priority   int               `json:"priority" db:"priority"`
	IsActive   bool              `json:"is_active" db:"is_active"`
	Definition RulesetDefinition `json:"definition" db:"definition"`
	Version    int64             `json:"version" db:"version"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// ScopeConditions is shorthand for the definition's scope tree.
func (rs *Ruleset) ScopeConditions() *ConditionNode {
	return rs.Definition.ScopeConditions
}

// FindRule returns the rule with the given id, or nil.
func (rs *Ruleset) FindRule(ruleID uuid.UUID) *Rule {
	for gi := range rs.Definition.Groups {
		for ri := range rs.Definition.Groups[gi].Rules {
			if rs.Definition.Groups[gi].Rules[ri].ID == ruleID {
				return &rs.Definition.Groups[gi].Rules[ri]
			}
		}
	}
	return nil
}

// CreateRulesetRequest represents the request to create a ruleset.
type CreateRulesetRequest struct {
	Name       string            `json:"name" validate:"required"`
	Priority   int               `json:"priority"`
	IsActive   *bool             `json:"is_active,omitempty"`
	Definition RulesetDefinition `json:"definition"`
}

// UpdateRulesetRequest represents the request to update a ruleset.
// A non-nil Definition is a structural edit and bumps the version.
type UpdateRulesetRequest struct {
	Name       *string            `json:"name,omitempty"`
	Priority   *int               `json:"priority,omitempty"`
	IsActive   *bool              `json:"is_active,omitempty"`
	Definition *RulesetDefinition `json:"definition,omitempty"`
}

// JSONB scanning for RulesetDefinition

func (d *RulesetDefinition) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, d)
}

func (d RulesetDefinition) Value() (driver.Value, error) {
	return json.Marshal(d)
}
