package models

import (
	"time"

	"github.com/google/uuid"
)

// OverrideMode selects between automatic evaluation and a pinned value.
type OverrideMode string

const (
	OverrideModeAuto   OverrideMode = "auto"
	OverrideModeStatic OverrideMode = "static"
)

// ValuationOverride pins or disables a ruleset's (or a single rule's)
// automatic evaluation for one listing. RuleID nil means the override
// applies at ruleset level. There is no history: an upsert discards the
// previous state; the breakdown trail is the audit record.
type ValuationOverride struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	ListingID   uuid.UUID    `json:"listing_id" db:"listing_id"`
	RulesetID   uuid.UUID    `json:"ruleset_id" db:"ruleset_id"`
	RuleID      *uuid.UUID   `json:"rule_id,omitempty" db:"rule_id"`
	Mode        OverrideMode `json:"mode" db:"mode"`
	StaticValue *float64     `json:"static_value,omitempty" db:"static_value"`
	Disabled    bool         `json:"disabled" db:"disabled"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// UpsertOverrideRequest represents the request to create or replace an
// override for (listing, ruleset, rule?).
type UpsertOverrideRequest struct {
	RulesetID   uuid.UUID    `json:"ruleset_id" validate:"required"`
	RuleID      *uuid.UUID   `json:"rule_id,omitempty"`
	Mode        OverrideMode `json:"mode" validate:"required,oneof=auto static"`
	StaticValue *float64     `json:"static_value,omitempty"`
	Disabled    bool         `json:"disabled"`
}

type overrideKey struct {
	rulesetID uuid.UUID
	ruleID    uuid.UUID
}

// OverrideSet is the preloaded override state for one listing. Lookup
// precedence is rule-specific over ruleset-level over none.
type OverrideSet struct {
	byRule    map[overrideKey]*ValuationOverride
	byRuleset map[uuid.UUID]*ValuationOverride
}

// NewOverrideSet indexes a listing's overrides for evaluation.
func NewOverrideSet(overrides []ValuationOverride) *OverrideSet {
	set := &OverrideSet{
		byRule:    make(map[overrideKey]*ValuationOverride),
		byRuleset: make(map[uuid.UUID]*ValuationOverride),
	}
	for i := range overrides {
		o := &overrides[i]
		if o.RuleID != nil {
			set.byRule[overrideKey{o.RulesetID, *o.RuleID}] = o
		} else {
			set.byRuleset[o.RulesetID] = o
		}
	}
	return set
}

// Resolve returns the override in effect for (ruleset, rule), or nil
// for the default auto/enabled state.
func (s *OverrideSet) Resolve(rulesetID, ruleID uuid.UUID) *ValuationOverride {
	if s == nil {
		return nil
	}
	if o, ok := s.byRule[overrideKey{rulesetID, ruleID}]; ok {
		return o
	}
	return s.byRuleset[rulesetID]
}

// RulesetOverride returns the ruleset-level override, or nil.
func (s *OverrideSet) RulesetOverride(rulesetID uuid.UUID) *ValuationOverride {
	if s == nil {
		return nil
	}
	return s.byRuleset[rulesetID]
}
