package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// BreakdownRepository handles evaluation breakdown persistence.
// Breakdowns are immutable: each pass inserts a new row that supersedes
// the previous one.
type BreakdownRepository struct {
	db *sql.DB
}

// NewBreakdownRepository creates a new breakdown repository
func NewBreakdownRepository(db *sql.DB) *BreakdownRepository {
	return &BreakdownRepository{db: db}
}

// SaveWithPrice persists the breakdown and the listing's adjusted price
// in one transaction. If either write fails the listing keeps its
// previous price and breakdown.
func (r *BreakdownRepository) SaveWithPrice(ctx context.Context, breakdown *models.EvaluationBreakdown) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evaluation_breakdowns (id, listing_id, entries, adjusted_price, versions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		breakdown.ID, breakdown.ListingID, breakdown.Entries,
		breakdown.AdjustedPrice, breakdown.Versions, breakdown.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert breakdown: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE listings SET adjusted_price = $2, updated_at = NOW() WHERE id = $1`,
		breakdown.ListingID, breakdown.AdjustedPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to update adjusted price: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check price update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("listing %s: %w", breakdown.ListingID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit breakdown: %w", err)
	}
	return nil
}

// GetLatest returns the most recent breakdown for a listing.
func (r *BreakdownRepository) GetLatest(ctx context.Context, listingID uuid.UUID) (*models.EvaluationBreakdown, error) {
	breakdown := &models.EvaluationBreakdown{}
	query := `
		SELECT id, listing_id, entries, adjusted_price, versions, created_at
		FROM evaluation_breakdowns
		WHERE listing_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.QueryRowContext(ctx, query, listingID).Scan(
		&breakdown.ID, &breakdown.ListingID, &breakdown.Entries,
		&breakdown.AdjustedPrice, &breakdown.Versions, &breakdown.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("breakdown for listing %s: %w", listingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get breakdown: %w", err)
	}

	return breakdown, nil
}

// ListForListing returns recent breakdowns for a listing, newest first.
func (r *BreakdownRepository) ListForListing(ctx context.Context, listingID uuid.UUID, limit int) ([]models.EvaluationBreakdown, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, listing_id, entries, adjusted_price, versions, created_at
		FROM evaluation_breakdowns
		WHERE listing_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list breakdowns: %w", err)
	}
	defer rows.Close()

	var breakdowns []models.EvaluationBreakdown
	for rows.Next() {
		var b models.EvaluationBreakdown
		if err := rows.Scan(
			&b.ID, &b.ListingID, &b.Entries, &b.AdjustedPrice, &b.Versions, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown: %w", err)
		}
		breakdowns = append(breakdowns, b)
	}
	return breakdowns, rows.Err()
}
