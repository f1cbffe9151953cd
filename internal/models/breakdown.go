package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Breakdown entry reasons. Matched and unmatched rules are both
// recorded so a user can see why every rule did or did not contribute.
const (
	EntryReasonMatched          = "matched"
	EntryReasonNotMatched       = "not_matched"
	EntryReasonInactive         = "rule_inactive"
	EntryReasonOverrideDisabled = "override_disabled"
	EntryReasonOverrideStatic   = "override_static"
	EntryReasonInertAction      = "inert_action"
	EntryReasonClamped          = "clamped_to_zero"
)

// BreakdownEntry records one rule's contribution (or non-contribution)
// during an evaluation pass. The terminal clamp entry has no rule id.
type BreakdownEntry struct {
	RulesetID    uuid.UUID  `json:"ruleset_id"`
	RuleID       *uuid.UUID `json:"rule_id,omitempty"`
	Matched      bool       `json:"matched"`
	Inert        bool       `json:"inert,omitempty"`
	Delta        float64    `json:"delta"`
	RunningTotal float64    `json:"running_total"`
	Reason       string     `json:"reason"`
}

// BreakdownEntries is the ordered entry list, stored as one JSONB
// document.
type BreakdownEntries []BreakdownEntry

// RulesetVersions maps ruleset id to the version that produced a
// breakdown, for staleness detection.
type RulesetVersions map[uuid.UUID]int64

// EvaluationBreakdown is the persisted, immutable result of one full
// evaluation pass for one listing. It is superseded by the next pass,
// never mutated.
type EvaluationBreakdown struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	ListingID     uuid.UUID        `json:"listing_id" db:"listing_id"`
	Entries       BreakdownEntries `json:"entries" db:"entries"`
	AdjustedPrice float64          `json:"adjusted_price" db:"adjusted_price"`
	Versions      RulesetVersions  `json:"versions" db:"versions"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// RulesFired counts entries that actually contributed a delta
// (matched, including static overrides; inert and unmatched excluded).
func (b *EvaluationBreakdown) RulesFired() int {
	fired := 0
	for i := range b.Entries {
		if b.Entries[i].Matched && !b.Entries[i].Inert && b.Entries[i].RuleID != nil {
			fired++
		}
	}
	return fired
}

// CompletionEvent is the payload published when a listing's evaluation
// completes. Deliberately small: observers fetch the full breakdown on
// demand.
type CompletionEvent struct {
	ListingID       uuid.UUID `json:"listing_id"`
	RulesFiredCount int       `json:"rules_fired_count"`
	AdjustedPrice   float64   `json:"adjusted_price"`
}

// JSONB scanning for BreakdownEntries

func (e *BreakdownEntries) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, e)
}

func (e BreakdownEntries) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// JSONB scanning for RulesetVersions

func (v *RulesetVersions) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, v)
}

func (v RulesetVersions) Value() (driver.Value, error) {
	return json.Marshal(v)
}
