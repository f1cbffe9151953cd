package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// ListingRepository handles listing database operations
type ListingRepository struct {
	db *sql.DB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create creates a new listing; the adjusted price starts at the base
// price until the first evaluation pass runs.
func (r *ListingRepository) Create(ctx context.Context, title string, basePrice float64, attributes models.ListingAttributes) (*models.Listing, error) {
	listing := &models.Listing{
		ID:            uuid.New(),
		Title:         title,
		BasePrice:     basePrice,
		AdjustedPrice: basePrice,
		Attributes:    attributes,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	query := `
		INSERT INTO listings (id, title, base_price, adjusted_price, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx, query,
		listing.ID, listing.Title, listing.BasePrice, listing.AdjustedPrice,
		listing.Attributes, listing.CreatedAt, listing.UpdatedAt,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	return listing, nil
}

// GetByID retrieves a listing by ID
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing := &models.Listing{}
	query := `
		SELECT id, title, base_price, adjusted_price, attributes, created_at, updated_at
		FROM listings
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&listing.ID, &listing.Title, &listing.BasePrice, &listing.AdjustedPrice,
		&listing.Attributes, &listing.CreatedAt, &listing.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return listing, nil
}

// GetSnapshot loads the evaluation snapshot for a listing.
func (r *ListingRepository) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.ListingSnapshot, error) {
	listing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := listing.Snapshot()
	return &snapshot, nil
}

// List retrieves listings with pagination
func (r *ListingRepository) List(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	query := `
		SELECT id, title, base_price, adjusted_price, attributes, created_at, updated_at
		FROM listings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var listing models.Listing
		if err := rows.Scan(
			&listing.ID, &listing.Title, &listing.BasePrice, &listing.AdjustedPrice,
			&listing.Attributes, &listing.CreatedAt, &listing.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

// UpdateComponents replaces the listing's base price and attributes.
// The adjusted price is left alone; the recalculation pipeline owns it.
func (r *ListingRepository) UpdateComponents(ctx context.Context, id uuid.UUID, basePrice *float64, attributes models.ListingAttributes) (*models.Listing, error) {
	listing := &models.Listing{}
	query := `
		UPDATE listings
		SET base_price = COALESCE($2, base_price),
		    attributes = COALESCE($3, attributes),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, base_price, adjusted_price, attributes, created_at, updated_at`

	var attrs interface{}
	if attributes != nil {
		attrs = attributes
	}

	err := r.db.QueryRowContext(ctx, query, id, basePrice, attrs).Scan(
		&listing.ID, &listing.Title, &listing.BasePrice, &listing.AdjustedPrice,
		&listing.Attributes, &listing.CreatedAt, &listing.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	return listing, nil
}

// AllIDs returns every listing id, used by the full-scan fallback.
func (r *ListingRepository) AllIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing ids: %w", err)
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
