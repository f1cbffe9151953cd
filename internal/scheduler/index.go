package scheduler

import (
	"context"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// CandidateIndex answers "which listings could this scope condition
// match". Implementations may index listings by the fields most
// commonly used in scope conditions (CPU id, form factor) and fall back
// to a conservative full scan when a condition is not indexable. The
// degraded flag marks that fallback so it can be surfaced in telemetry.
type CandidateIndex interface {
	Candidates(ctx context.Context, scope *models.ConditionNode) (ids []uuid.UUID, degraded bool, err error)
}

// RulesetSource provides the read-only ruleset state the scheduler
// needs when computing affected listings and capturing versions.
type RulesetSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ruleset, error)
	ActiveVersions(ctx context.Context) (models.RulesetVersions, error)
}

// OverrideLister reports the listings holding overrides against a
// ruleset. Those listings join every fan-out for the ruleset: a pinned
// or disabled entry references it even when the current scope does not.
type OverrideLister interface {
	ListingsWithOverrides(ctx context.Context, rulesetID uuid.UUID) ([]uuid.UUID, error)
}
