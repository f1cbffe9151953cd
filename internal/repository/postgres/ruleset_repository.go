package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RulesetRepository handles ruleset database operations
type RulesetRepository struct {
	db *sql.DB
}

// NewRulesetRepository creates a new ruleset repository
func NewRulesetRepository(db *sql.DB) *RulesetRepository {
	return &RulesetRepository{db: db}
}

// Create creates a new ruleset at version 1
func (r *RulesetRepository) Create(ctx context.Context, req *models.CreateRulesetRequest) (*models.Ruleset, error) {
	ruleset := &models.Ruleset{
		ID:         uuid.New(),
		Name:       req.Name,
		Priority:   req.Priority,
		IsActive:   true,
		Definition: req.Definition,
		Version:    1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if req.IsActive != nil {
		ruleset.IsActive = *req.IsActive
	}

	query := `
		INSERT INTO rulesets (id, name, priority, is_active, definition, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx, query,
		ruleset.ID, ruleset.Name, ruleset.Priority, ruleset.IsActive,
		ruleset.Definition, ruleset.Version, ruleset.CreatedAt, ruleset.UpdatedAt,
	).Scan(&ruleset.CreatedAt, &ruleset.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create ruleset: %w", err)
	}

	return ruleset, nil
}

// GetByID retrieves a ruleset by ID
func (r *RulesetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ruleset, error) {
	ruleset := &models.Ruleset{}
	query := `
		SELECT id, name, priority, is_active, definition, version, created_at, updated_at
		FROM rulesets
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ruleset.ID, &ruleset.Name, &ruleset.Priority, &ruleset.IsActive,
		&ruleset.Definition, &ruleset.Version, &ruleset.CreatedAt, &ruleset.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ruleset: %w", err)
	}

	return ruleset, nil
}

// List retrieves all rulesets ordered by priority then id
func (r *RulesetRepository) List(ctx context.Context) ([]models.Ruleset, error) {
	query := `
		SELECT id, name, priority, is_active, definition, version, created_at, updated_at
		FROM rulesets
		ORDER BY priority ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rulesets: %w", err)
	}
	defer rows.Close()

	return scanRulesets(rows)
}

// ListActive retrieves all active rulesets ordered by priority then id
func (r *RulesetRepository) ListActive(ctx context.Context) ([]models.Ruleset, error) {
	query := `
		SELECT id, name, priority, is_active, definition, version, created_at, updated_at
		FROM rulesets
		WHERE is_active = true
		ORDER BY priority ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rulesets: %w", err)
	}
	defer rows.Close()

	return scanRulesets(rows)
}

func scanRulesets(rows *sql.Rows) ([]models.Ruleset, error) {
	var rulesets []models.Ruleset
	for rows.Next() {
		var ruleset models.Ruleset
		if err := rows.Scan(
			&ruleset.ID, &ruleset.Name, &ruleset.Priority, &ruleset.IsActive,
			&ruleset.Definition, &ruleset.Version, &ruleset.CreatedAt, &ruleset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ruleset: %w", err)
		}
		rulesets = append(rulesets, ruleset)
	}
	return rulesets, rows.Err()
}

// Update applies a partial update. A definition edit is a structural
// mutation and bumps the version inside the same statement so no read
// can observe the new definition with the old version.
func (r *RulesetRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateRulesetRequest) (*models.Ruleset, error) {
	ruleset := &models.Ruleset{}
	query := `
		UPDATE rulesets
		SET name = COALESCE($2, name),
		    priority = COALESCE($3, priority),
		    is_active = COALESCE($4, is_active),
		    definition = COALESCE($5, definition),
		    version = version + CASE WHEN $5::jsonb IS NULL THEN 0 ELSE 1 END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, priority, is_active, definition, version, created_at, updated_at`

	var definition interface{}
	if req.Definition != nil {
		definition = *req.Definition
	}

	err := r.db.QueryRowContext(
		ctx, query,
		id, req.Name, req.Priority, req.IsActive, definition,
	).Scan(
		&ruleset.ID, &ruleset.Name, &ruleset.Priority, &ruleset.IsActive,
		&ruleset.Definition, &ruleset.Version, &ruleset.CreatedAt, &ruleset.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ruleset: %w", err)
	}

	return ruleset, nil
}

// Delete removes a ruleset and its overrides
func (r *RulesetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rulesets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveVersions returns the current version of every active ruleset.
func (r *RulesetRepository) ActiveVersions(ctx context.Context) (models.RulesetVersions, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, version FROM rulesets WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ruleset versions: %w", err)
	}
	defer rows.Close()

	versions := make(models.RulesetVersions)
	for rows.Next() {
		var id uuid.UUID
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("failed to scan ruleset version: %w", err)
		}
		versions[id] = version
	}
	return versions, rows.Err()
}
