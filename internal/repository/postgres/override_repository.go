package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// OverrideRepository handles valuation override database operations.
// Overrides have no history: an upsert replaces any previous state for
// the same (listing, ruleset, rule) key.
type OverrideRepository struct {
	db *sql.DB
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *sql.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// Upsert creates or replaces the override for (listing, ruleset, rule?).
// A nil rule id keys a ruleset-level override. The unique index treats
// NULL rule ids as equal so the conflict target works for both shapes.
func (r *OverrideRepository) Upsert(ctx context.Context, listingID uuid.UUID, req *models.UpsertOverrideRequest) (*models.ValuationOverride, error) {
	override := &models.ValuationOverride{
		ID:          uuid.New(),
		ListingID:   listingID,
		RulesetID:   req.RulesetID,
		RuleID:      req.RuleID,
		Mode:        req.Mode,
		StaticValue: req.StaticValue,
		Disabled:    req.Disabled,
		UpdatedAt:   time.Now(),
	}

	query := `
		INSERT INTO valuation_overrides (id, listing_id, ruleset_id, rule_id, mode, static_value, disabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (listing_id, ruleset_id, COALESCE(rule_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET mode = EXCLUDED.mode,
		              static_value = EXCLUDED.static_value,
		              disabled = EXCLUDED.disabled,
		              updated_at = EXCLUDED.updated_at
		RETURNING id, updated_at`

	err := r.db.QueryRowContext(
		ctx, query,
		override.ID, override.ListingID, override.RulesetID, override.RuleID,
		override.Mode, override.StaticValue, override.Disabled, override.UpdatedAt,
	).Scan(&override.ID, &override.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert override: %w", err)
	}

	return override, nil
}

// ListForListing returns every override in effect for one listing.
func (r *OverrideRepository) ListForListing(ctx context.Context, listingID uuid.UUID) ([]models.ValuationOverride, error) {
	query := `
		SELECT id, listing_id, ruleset_id, rule_id, mode, static_value, disabled, updated_at
		FROM valuation_overrides
		WHERE listing_id = $1`

	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.ValuationOverride
	for rows.Next() {
		var o models.ValuationOverride
		if err := rows.Scan(
			&o.ID, &o.ListingID, &o.RulesetID, &o.RuleID,
			&o.Mode, &o.StaticValue, &o.Disabled, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// Delete removes an override, restoring default automatic evaluation.
func (r *OverrideRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM valuation_overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("override %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListingsWithOverrides returns the distinct listings referencing a
// ruleset via overrides, so a ruleset change can also refresh listings
// pinned outside its current scope.
func (r *OverrideRepository) ListingsWithOverrides(ctx context.Context, rulesetID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT listing_id FROM valuation_overrides WHERE ruleset_id = $1`, rulesetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query override listings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
