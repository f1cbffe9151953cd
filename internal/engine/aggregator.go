package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// Aggregator folds rule deltas across rulesets into one adjusted price
// with an explainable breakdown. It is pure in-memory computation: the
// rulesets and overrides are read-only snapshots captured by the
// caller, so an edit made mid-evaluation never mutates an in-flight
// pass.
type Aggregator struct {
	evaluator *Evaluator
	resolver  *Resolver
}

// NewAggregator creates a new ruleset aggregator.
func NewAggregator() *Aggregator {
	evaluator := NewEvaluator()
	return &Aggregator{
		evaluator: evaluator,
		resolver:  NewResolver(evaluator),
	}
}

// EvaluateListing runs the full evaluation pass for one listing.
//
// Rulesets are filtered to active ones whose scope conditions match,
// then sorted ascending by (priority, id); lower priority numbers
// evaluate first and later rulesets layer on top; rulesets never
// short-circuit each other. Every rule considered produces a breakdown
// entry, matched or not. The final price is clamped at zero and the
// clamp itself is recorded as a terminal entry.
func (a *Aggregator) EvaluateListing(
	listing models.ListingSnapshot,
	rulesets []models.Ruleset,
	overrides *models.OverrideSet,
) *models.EvaluationBreakdown {
	applicable := make([]models.Ruleset, 0, len(rulesets))
	versions := make(models.RulesetVersions, len(rulesets))
	for i := range rulesets {
		rs := rulesets[i]
		versions[rs.ID] = rs.Version
		if !rs.IsActive {
			continue
		}
		if !a.evaluator.Evaluate(rs.ScopeConditions(), listing.Fields) {
			continue
		}
		applicable = append(applicable, rs)
	}

	sort.Slice(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority < applicable[j].Priority
		}
		return applicable[i].ID.String() < applicable[j].ID.String()
	})

	breakdown := &models.EvaluationBreakdown{
		ID:        uuid.New(),
		ListingID: listing.ID,
		Versions:  versions,
		CreatedAt: time.Now(),
	}

	runningTotal := listing.BasePrice
	for i := range applicable {
		rs := &applicable[i]

		// A ruleset-level static pin replaces the ruleset's whole
		// contribution with one entry; its rules are not walked, so the
		// pinned value lands exactly once regardless of rule count.
		if o := overrides.RulesetOverride(rs.ID); o != nil && !o.Disabled && o.Mode == models.OverrideModeStatic {
			var pinned float64
			if o.StaticValue != nil {
				pinned = *o.StaticValue
			}
			runningTotal += pinned
			breakdown.Entries = append(breakdown.Entries, models.BreakdownEntry{
				RulesetID:    rs.ID,
				Matched:      true,
				Delta:        pinned,
				RunningTotal: runningTotal,
				Reason:       models.EntryReasonOverrideStatic,
			})
			continue
		}

		for gi := range rs.Definition.Groups {
			group := &rs.Definition.Groups[gi]
			for ri := range group.Rules {
				rule := &group.Rules[ri]
				entry := a.evaluateRule(listing, rs.ID, rule, overrides, runningTotal)
				runningTotal = entry.RunningTotal
				breakdown.Entries = append(breakdown.Entries, entry)
			}
		}
	}

	if runningTotal < 0 {
		// Adjusted price floors at zero; the clamp is part of the
		// audit trail.
		breakdown.Entries = append(breakdown.Entries, models.BreakdownEntry{
			RulesetID:    uuid.Nil,
			Matched:      true,
			Delta:        -runningTotal,
			RunningTotal: 0,
			Reason:       models.EntryReasonClamped,
		})
		runningTotal = 0
	}

	breakdown.AdjustedPrice = runningTotal
	return breakdown
}

// evaluateRule applies the override layer, then the resolver, and
// returns the breakdown entry for one rule.
func (a *Aggregator) evaluateRule(
	listing models.ListingSnapshot,
	rulesetID uuid.UUID,
	rule *models.Rule,
	overrides *models.OverrideSet,
	runningTotal float64,
) models.BreakdownEntry {
	ruleID := rule.ID
	entry := models.BreakdownEntry{
		RulesetID:    rulesetID,
		RuleID:       &ruleID,
		RunningTotal: runningTotal,
	}

	if override := overrides.Resolve(rulesetID, ruleID); override != nil {
		if override.Disabled {
			entry.Reason = models.EntryReasonOverrideDisabled
			return entry
		}
		if override.Mode == models.OverrideModeStatic {
			// Pinned value bypasses the resolver entirely, even when
			// the rule's conditions would not match.
			var pinned float64
			if override.StaticValue != nil {
				pinned = *override.StaticValue
			}
			entry.Matched = true
			entry.Delta = pinned
			entry.RunningTotal = runningTotal + pinned
			entry.Reason = models.EntryReasonOverrideStatic
			return entry
		}
	}

	if !rule.IsActive {
		entry.Reason = models.EntryReasonInactive
		return entry
	}

	outcome := a.resolver.Resolve(rule, listing.Fields)
	switch {
	case !outcome.Matched:
		entry.Reason = models.EntryReasonNotMatched
	case outcome.Inert:
		entry.Matched = true
		entry.Inert = true
		entry.Reason = models.EntryReasonInertAction
	default:
		entry.Matched = true
		entry.Delta = outcome.Delta
		entry.RunningTotal = runningTotal + outcome.Delta
		entry.Reason = models.EntryReasonMatched
	}
	return entry
}
