package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/repository/postgres"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

// ValuationService handles listing valuation: component edits that
// trigger recalculation, the synchronous evaluation entry point, the
// override layer, and breakdown retrieval.
type ValuationService struct {
	listingRepo   *postgres.ListingRepository
	overrideRepo  *postgres.OverrideRepository
	breakdownRepo *postgres.BreakdownRepository
	rulesets      *RulesetService
	notifier      ChangeNotifier
	aggregator    *engine.Aggregator
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// NewValuationService creates a new valuation service
func NewValuationService(
	listingRepo *postgres.ListingRepository,
	overrideRepo *postgres.OverrideRepository,
	breakdownRepo *postgres.BreakdownRepository,
	rulesets *RulesetService,
	notifier ChangeNotifier,
	log *logger.Logger,
	m *metrics.Metrics,
) *ValuationService {
	return &ValuationService{
		listingRepo:   listingRepo,
		overrideRepo:  overrideRepo,
		breakdownRepo: breakdownRepo,
		rulesets:      rulesets,
		notifier:      notifier,
		aggregator:    engine.NewAggregator(),
		logger:        log,
		metrics:       m,
	}
}

// CreateListing creates a listing and schedules its first evaluation.
func (s *ValuationService) CreateListing(ctx context.Context, title string, basePrice float64, attributes models.ListingAttributes) (*models.Listing, error) {
	listing, err := s.listingRepo.Create(ctx, title, basePrice, attributes)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.OnListingComponentsChanged(ctx, listing.ID); err != nil {
		s.logger.WithError(err).Error("Failed to schedule initial evaluation",
			logger.String("listing_id", listing.ID.String()),
		)
	}

	s.logger.Info("Listing created",
		logger.String("listing_id", listing.ID.String()),
		logger.Float64("base_price", listing.BasePrice),
	)
	return listing, nil
}

// GetListing retrieves a listing by ID
func (s *ValuationService) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.listingRepo.GetByID(ctx, id)
}

// ListListings retrieves listings with pagination
func (s *ValuationService) ListListings(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.listingRepo.List(ctx, limit, offset)
}

// UpdateListingComponents applies a base price or attribute edit and
// schedules re-evaluation.
func (s *ValuationService) UpdateListingComponents(ctx context.Context, id uuid.UUID, basePrice *float64, attributes models.ListingAttributes) (*models.Listing, error) {
	listing, err := s.listingRepo.UpdateComponents(ctx, id, basePrice, attributes)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.OnListingComponentsChanged(ctx, listing.ID); err != nil {
		s.logger.WithError(err).Error("Failed to schedule recalculation after component edit",
			logger.String("listing_id", listing.ID.String()),
		)
	}

	return listing, nil
}

// EvaluateListing runs a synchronous evaluation pass for one listing
// and returns the breakdown without persisting it. Unknown listings
// fail fast.
func (s *ValuationService) EvaluateListing(ctx context.Context, listingID uuid.UUID) (*models.EvaluationBreakdown, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", engine.ErrUnknownListing, listingID)
		}
		return nil, err
	}

	rulesets, err := s.rulesets.ActiveRulesets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rulesets: %w", err)
	}

	overrideRows, err := s.overrideRepo.ListForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	start := time.Now()
	breakdown := s.aggregator.EvaluateListing(listing.Snapshot(), rulesets, models.NewOverrideSet(overrideRows))
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
		s.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		s.metrics.RulesFired.Observe(float64(breakdown.RulesFired()))
	}

	return breakdown, nil
}

// RecalculateListing schedules an asynchronous recalculation for one
// listing, verifying the listing exists first.
func (s *ValuationService) RecalculateListing(ctx context.Context, listingID uuid.UUID) error {
	if _, err := s.listingRepo.GetByID(ctx, listingID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return fmt.Errorf("%w: %s", engine.ErrUnknownListing, listingID)
		}
		return err
	}
	return s.notifier.OnListingComponentsChanged(ctx, listingID)
}

// UpsertOverride creates or replaces an override and schedules
// re-evaluation of the affected listing. The ruleset (and rule, when
// given) must exist.
func (s *ValuationService) UpsertOverride(ctx context.Context, listingID uuid.UUID, req *models.UpsertOverrideRequest) (*models.ValuationOverride, error) {
	if _, err := s.listingRepo.GetByID(ctx, listingID); err != nil {
		return nil, err
	}

	ruleset, err := s.rulesets.GetByID(ctx, req.RulesetID)
	if err != nil {
		return nil, err
	}
	if req.RuleID != nil && ruleset.FindRule(*req.RuleID) == nil {
		return nil, fmt.Errorf("rule %s in ruleset %s: %w", req.RuleID, req.RulesetID, postgres.ErrNotFound)
	}
	if req.Mode == models.OverrideModeStatic && req.StaticValue == nil {
		return nil, fmt.Errorf("static override requires a static value")
	}

	override, err := s.overrideRepo.Upsert(ctx, listingID, req)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.OnListingComponentsChanged(ctx, listingID); err != nil {
		s.logger.WithError(err).Error("Failed to schedule recalculation after override change",
			logger.String("listing_id", listingID.String()),
		)
	}

	s.logger.Info("Override upserted",
		logger.String("listing_id", listingID.String()),
		logger.String("ruleset_id", req.RulesetID.String()),
		logger.String("mode", string(req.Mode)),
		logger.Bool("disabled", req.Disabled),
	)
	return override, nil
}

// ListOverrides returns the overrides in effect for one listing.
func (s *ValuationService) ListOverrides(ctx context.Context, listingID uuid.UUID) ([]models.ValuationOverride, error) {
	return s.overrideRepo.ListForListing(ctx, listingID)
}

// DeleteOverride removes an override and schedules re-evaluation.
func (s *ValuationService) DeleteOverride(ctx context.Context, listingID, overrideID uuid.UUID) error {
	if err := s.overrideRepo.Delete(ctx, overrideID); err != nil {
		return err
	}

	if err := s.notifier.OnListingComponentsChanged(ctx, listingID); err != nil {
		s.logger.WithError(err).Error("Failed to schedule recalculation after override delete",
			logger.String("listing_id", listingID.String()),
		)
	}
	return nil
}

// GetLatestBreakdown returns the most recent persisted breakdown.
func (s *ValuationService) GetLatestBreakdown(ctx context.Context, listingID uuid.UUID) (*models.EvaluationBreakdown, error) {
	return s.breakdownRepo.GetLatest(ctx, listingID)
}

// ListBreakdowns returns recent breakdowns for a listing, newest first.
func (s *ValuationService) ListBreakdowns(ctx context.Context, listingID uuid.UUID, limit int) ([]models.EvaluationBreakdown, error) {
	return s.breakdownRepo.ListForListing(ctx, listingID, limit)
}
