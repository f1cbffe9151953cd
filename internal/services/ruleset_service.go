package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/repository/postgres"
	"github.com/dealscope/valuation-engine/pkg/database"
	"github.com/dealscope/valuation-engine/pkg/logger"
)

const activeRulesetsCacheKey = "valuation:rulesets:active"

// ErrForeignKeyRuleEdit is returned when an update would modify or
// remove a system-generated catalog reference rule.
var ErrForeignKeyRuleEdit = errors.New("foreign key rules are read-only")

// ChangeNotifier receives structural change events so affected listings
// can be re-evaluated. Implemented by the scheduler.
type ChangeNotifier interface {
	OnRulesetChanged(ctx context.Context, rulesetID uuid.UUID, newVersion int64) error
	OnRulesetUpdated(ctx context.Context, rulesetID uuid.UUID, newVersion int64, previousScope *models.ConditionNode) error
	OnRulesetRemoved(ctx context.Context, ruleset *models.Ruleset) error
	OnListingComponentsChanged(ctx context.Context, listingID uuid.UUID) error
}

// RulesetService handles ruleset business logic: validation on the
// write path, foreign-key rule protection, baseline hydration, and the
// active-ruleset snapshot cache.
type RulesetService struct {
	rulesetRepo *postgres.RulesetRepository
	notifier    ChangeNotifier
	redis       *database.RedisClient
	snapshotTTL time.Duration
	logger      *logger.Logger
}

// NewRulesetService creates a new ruleset service
func NewRulesetService(
	rulesetRepo *postgres.RulesetRepository,
	notifier ChangeNotifier,
	redis *database.RedisClient,
	snapshotTTL time.Duration,
	log *logger.Logger,
) *RulesetService {
	if snapshotTTL <= 0 {
		snapshotTTL = 5 * time.Minute
	}
	return &RulesetService{
		rulesetRepo: rulesetRepo,
		notifier:    notifier,
		redis:       redis,
		snapshotTTL: snapshotTTL,
		logger:      log,
	}
}

// Create validates and creates a new ruleset, then schedules
// re-evaluation of the listings its scope covers.
func (s *RulesetService) Create(ctx context.Context, req *models.CreateRulesetRequest) (*models.Ruleset, error) {
	if err := validateDefinition(&req.Definition); err != nil {
		return nil, fmt.Errorf("invalid ruleset definition: %w", err)
	}
	normalizeDefinition(&req.Definition)

	ruleset, err := s.rulesetRepo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)

	if err := s.notifier.OnRulesetChanged(ctx, ruleset.ID, ruleset.Version); err != nil {
		s.logger.WithError(err).Error("Failed to schedule recalculation for new ruleset",
			logger.String("ruleset_id", ruleset.ID.String()),
		)
	}

	s.logger.Info("Ruleset created",
		logger.String("ruleset_id", ruleset.ID.String()),
		logger.String("name", ruleset.Name),
		logger.Int("priority", ruleset.Priority),
	)
	return ruleset, nil
}

// GetByID retrieves a ruleset by ID
func (s *RulesetService) GetByID(ctx context.Context, id uuid.UUID) (*models.Ruleset, error) {
	return s.rulesetRepo.GetByID(ctx, id)
}

// List retrieves all rulesets
func (s *RulesetService) List(ctx context.Context) ([]models.Ruleset, error) {
	return s.rulesetRepo.List(ctx)
}

// ActiveVersions implements the scheduler's version capture.
func (s *RulesetService) ActiveVersions(ctx context.Context) (models.RulesetVersions, error) {
	return s.rulesetRepo.ActiveVersions(ctx)
}

// Update applies a partial update. Structural (definition) edits bump
// the version and trigger recalculation of affected listings; edits
// touching foreign-key rules are rejected outright.
func (s *RulesetService) Update(ctx context.Context, id uuid.UUID, req *models.UpdateRulesetRequest) (*models.Ruleset, error) {
	current, err := s.rulesetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	structural := req.Definition != nil
	if structural {
		if err := validateDefinition(req.Definition); err != nil {
			return nil, fmt.Errorf("invalid ruleset definition: %w", err)
		}
		normalizeDefinition(req.Definition)
		if err := guardForeignKeyRules(&current.Definition, req.Definition); err != nil {
			return nil, err
		}
		hydrateBaselines(&current.Definition, req.Definition)
	}

	ruleset, err := s.rulesetRepo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)

	// Activation toggles change which rulesets apply, so they schedule
	// recalculation too, even though the version does not move. The scope
	// captured before the edit rides along so listings a narrowing edit
	// pushed out of scope are refreshed as well.
	activationChanged := req.IsActive != nil && *req.IsActive != current.IsActive
	if structural || activationChanged {
		if err := s.notifier.OnRulesetUpdated(ctx, ruleset.ID, ruleset.Version, current.Definition.ScopeConditions); err != nil {
			s.logger.WithError(err).Error("Failed to schedule recalculation after ruleset update",
				logger.String("ruleset_id", ruleset.ID.String()),
			)
		}
	}

	s.logger.Info("Ruleset updated",
		logger.String("ruleset_id", ruleset.ID.String()),
		logger.Int64("version", ruleset.Version),
		logger.Bool("structural", structural),
	)
	return ruleset, nil
}

// Delete removes a ruleset. Affected listings are recalculated against
// the remaining rulesets.
func (s *RulesetService) Delete(ctx context.Context, id uuid.UUID) error {
	ruleset, err := s.rulesetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.rulesetRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateSnapshot(ctx)

	// The scope captured before removal tells the scheduler which
	// listings need refreshing against the remaining rulesets.
	if err := s.notifier.OnRulesetRemoved(ctx, ruleset); err != nil {
		s.logger.WithError(err).Warn("Failed to schedule recalculation after ruleset delete",
			logger.String("ruleset_id", id.String()),
		)
	}

	s.logger.Info("Ruleset deleted", logger.String("ruleset_id", id.String()))
	return nil
}

// Recalculate schedules re-evaluation of every listing the ruleset's
// scope covers, without changing the ruleset itself.
func (s *RulesetService) Recalculate(ctx context.Context, id uuid.UUID) error {
	ruleset, err := s.rulesetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.notifier.OnRulesetChanged(ctx, id, ruleset.Version)
}

// ActiveRulesets returns the active ruleset snapshot workers evaluate
// against, served from Redis when fresh.
func (s *RulesetService) ActiveRulesets(ctx context.Context) ([]models.Ruleset, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, activeRulesetsCacheKey); err == nil {
			var rulesets []models.Ruleset
			if err := json.Unmarshal([]byte(cached), &rulesets); err == nil {
				return rulesets, nil
			}
		}
	}

	rulesets, err := s.rulesetRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if payload, err := json.Marshal(rulesets); err == nil {
			if err := s.redis.Set(ctx, activeRulesetsCacheKey, payload, s.snapshotTTL); err != nil {
				s.logger.WithError(err).Debug("Failed to cache ruleset snapshot")
			}
		}
	}
	return rulesets, nil
}

// invalidateSnapshot drops the cached active-ruleset snapshot so the
// next evaluation pass sees the new state.
func (s *RulesetService) invalidateSnapshot(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Delete(ctx, activeRulesetsCacheKey); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate ruleset snapshot cache")
	}
}

// validateDefinition checks every condition tree and action in the
// definition so malformed state never reaches the evaluator. Condition
// tree failures carry engine.ErrMalformedCondition so callers can tell
// a broken tree from a broken action.
func validateDefinition(def *models.RulesetDefinition) error {
	if err := def.ScopeConditions.Validate(); err != nil {
		return fmt.Errorf("scope conditions: %w: %v", engine.ErrMalformedCondition, err)
	}
	for gi := range def.Groups {
		group := &def.Groups[gi]
		if group.Name == "" {
			return fmt.Errorf("rule group %s has no name", group.ID)
		}
		for ri := range group.Rules {
			rule := &group.Rules[ri]
			if rule.Name == "" {
				return fmt.Errorf("rule %s has no name", rule.ID)
			}
			if err := rule.ConditionTree.Validate(); err != nil {
				return fmt.Errorf("rule %q: %w: %v", rule.Name, engine.ErrMalformedCondition, err)
			}
			if err := validateAction(&rule.Action); err != nil {
				return fmt.Errorf("rule %q: %w", rule.Name, err)
			}
		}
	}
	return nil
}

func validateAction(action *models.RuleAction) error {
	switch action.Type {
	case models.ActionFixed:
		return nil
	case models.ActionPercentage:
		if action.BaseField == "" {
			return fmt.Errorf("percentage action requires a base field")
		}
		return nil
	case models.ActionFormula:
		if len(action.Formula) == 0 {
			return fmt.Errorf("formula action requires a formula document")
		}
		if !json.Valid(action.Formula) {
			return fmt.Errorf("formula action carries invalid JSON")
		}
		return nil
	default:
		return fmt.Errorf("unknown action type: %q", action.Type)
	}
}

// normalizeDefinition prunes empty condition groups and assigns ids to
// new groups and rules.
func normalizeDefinition(def *models.RulesetDefinition) {
	def.ScopeConditions = def.ScopeConditions.Normalize()
	for gi := range def.Groups {
		group := &def.Groups[gi]
		if group.ID == uuid.Nil {
			group.ID = uuid.New()
		}
		for ri := range group.Rules {
			rule := &group.Rules[ri]
			if rule.ID == uuid.Nil {
				rule.ID = uuid.New()
			}
			rule.ConditionTree = rule.ConditionTree.Normalize()
		}
	}
}

// guardForeignKeyRules rejects updates that modify or drop a
// system-generated catalog reference rule. Toggling such a rule off via
// an override is the supported path; editing it is not.
func guardForeignKeyRules(old, updated *models.RulesetDefinition) error {
	for gi := range old.Groups {
		for ri := range old.Groups[gi].Rules {
			oldRule := &old.Groups[gi].Rules[ri]
			if !oldRule.Metadata.IsForeignKeyRule {
				continue
			}
			newRule := findRule(updated, oldRule.ID)
			if newRule == nil {
				return fmt.Errorf("rule %q: %w", oldRule.Name, ErrForeignKeyRuleEdit)
			}
			if !sameRuleContent(oldRule, newRule) {
				return fmt.Errorf("rule %q: %w", oldRule.Name, ErrForeignKeyRuleEdit)
			}
		}
	}
	return nil
}

// hydrateBaselines flips the hydrated flag on baseline placeholder
// rules the first time a user edit touches them.
func hydrateBaselines(old, updated *models.RulesetDefinition) {
	for gi := range updated.Groups {
		for ri := range updated.Groups[gi].Rules {
			newRule := &updated.Groups[gi].Rules[ri]
			if !newRule.Metadata.BaselinePlaceholder || newRule.Metadata.Hydrated {
				continue
			}
			oldRule := findRule(old, newRule.ID)
			if oldRule != nil && !sameRuleContent(oldRule, newRule) {
				newRule.Metadata.Hydrated = true
			}
		}
	}
}

func findRule(def *models.RulesetDefinition, ruleID uuid.UUID) *models.Rule {
	for gi := range def.Groups {
		for ri := range def.Groups[gi].Rules {
			if def.Groups[gi].Rules[ri].ID == ruleID {
				return &def.Groups[gi].Rules[ri]
			}
		}
	}
	return nil
}

// sameRuleContent compares everything except metadata.
func sameRuleContent(a, b *models.Rule) bool {
	stripped := func(r *models.Rule) *models.Rule {
		c := *r
		c.Metadata = models.RuleMetadata{}
		return &c
	}
	aj, err := json.Marshal(stripped(a))
	if err != nil {
		return false
	}
	bj, err := json.Marshal(stripped(b))
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
