package handlers

import (
	"github.com/dealscope/valuation-engine/internal/services"
	"github.com/dealscope/valuation-engine/pkg/logger"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	Health   *HealthHandler
	Ruleset  *RulesetHandler
	Listing  *ListingHandler
	Override *OverrideHandler
}

// HealthCheckers holds all health check dependencies
type HealthCheckers struct {
	DB    HealthChecker
	Redis HealthChecker
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	log *logger.Logger,
	rulesetService *services.RulesetService,
	valuationService *services.ValuationService,
	healthCheckers *HealthCheckers,
	version string,
) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(log, healthCheckers.DB, healthCheckers.Redis, version),
		Ruleset:  NewRulesetHandler(log, rulesetService),
		Listing:  NewListingHandler(log, valuationService),
		Override: NewOverrideHandler(log, valuationService),
	}
}
