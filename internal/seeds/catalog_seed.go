package seeds

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// SeedCatalog inserts a sample ruleset and a handful of listings for
// local development. Existing rows with the same names are left alone
// unless force is set.
func SeedCatalog(ctx context.Context, db *sql.DB, force bool) error {
	if !force {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rulesets`).Scan(&count); err != nil {
			return fmt.Errorf("failed to check existing rulesets: %w", err)
		}
		if count > 0 {
			return nil
		}
	}

	for _, rs := range sampleRulesets() {
		if err := insertRuleset(ctx, db, rs); err != nil {
			return err
		}
	}
	for _, l := range sampleListings() {
		if err := insertListing(ctx, db, l); err != nil {
			return err
		}
	}
	return nil
}

func insertRuleset(ctx context.Context, db *sql.DB, rs models.Ruleset) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO rulesets (id, name, priority, is_active, definition, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`,
		rs.ID, rs.Name, rs.Priority, rs.IsActive, rs.Definition, rs.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to seed ruleset %q: %w", rs.Name, err)
	}
	return nil
}

func insertListing(ctx context.Context, db *sql.DB, l models.Listing) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO listings (id, title, base_price, adjusted_price, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`,
		l.ID, l.Title, l.BasePrice, l.AdjustedPrice, l.Attributes,
	)
	if err != nil {
		return fmt.Errorf("failed to seed listing %q: %w", l.Title, err)
	}
	return nil
}

func sampleRulesets() []models.Ruleset {
	gpuFormula := json.RawMessage(`{"*": [{"var": "gpu_vram_gb"}, 12.5]}`)

	return []models.Ruleset{
		{
			ID:       uuid.MustParse("11111111-1111-4111-8111-111111111111"),
			Name:     "GPU premiums",
			Priority: 10,
			IsActive: true,
			Version:  1,
			Definition: models.RulesetDefinition{
				ScopeConditions: &models.ConditionNode{
					FieldName: "gpu_model",
					FieldType: models.FieldTypeString,
					Operator:  models.OpIsNotEmpty,
				},
				Groups: []models.RuleGroup{
					{
						ID:       uuid.MustParse("21111111-1111-4111-8111-111111111111"),
						Name:     "VRAM adjustments",
						Category: "gpu",
						Rules: []models.Rule{
							{
								ID:       uuid.MustParse("31111111-1111-4111-8111-111111111111"),
								Name:     "High VRAM premium",
								IsActive: true,
								ConditionTree: &models.ConditionNode{
									FieldName: "gpu_vram_gb",
									FieldType: models.FieldTypeNumber,
									Operator:  models.OpGreaterThanOrEqual,
									Value:     16,
								},
								Action: models.RuleAction{
									Type:    models.ActionFormula,
									Formula: gpuFormula,
								},
							},
							{
								ID:       uuid.MustParse("32111111-1111-4111-8111-111111111111"),
								Name:     "Legacy GPU discount",
								IsActive: true,
								ConditionTree: &models.ConditionNode{
									FieldName: "gpu_generation",
									FieldType: models.FieldTypeNumber,
									Operator:  models.OpLessThan,
									Value:     30,
								},
								Action: models.RuleAction{
									Type:   models.ActionFixed,
									Amount: -75,
								},
							},
						},
					},
				},
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		{
			ID:       uuid.MustParse("12111111-1111-4111-8111-111111111111"),
			Name:     "Condition grading",
			Priority: 20,
			IsActive: true,
			Version:  1,
			Definition: models.RulesetDefinition{
				Groups: []models.RuleGroup{
					{
						ID:   uuid.MustParse("22111111-1111-4111-8111-111111111111"),
						Name: "Cosmetic grade",
						Rules: []models.Rule{
							{
								ID:       uuid.MustParse("33111111-1111-4111-8111-111111111111"),
								Name:     "Refurbished discount",
								IsActive: true,
								ConditionTree: &models.ConditionNode{
									FieldName: "condition_grade",
									FieldType: models.FieldTypeEnum,
									Operator:  models.OpIn,
									Value:     []interface{}{"refurbished", "used_good"},
								},
								Action: models.RuleAction{
									Type:       models.ActionPercentage,
									Percentage: -0.15,
									BaseField:  "base_price",
								},
							},
						},
					},
				},
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}
}

func sampleListings() []models.Listing {
	return []models.Listing{
		{
			ID:            uuid.MustParse("41111111-1111-4111-8111-111111111111"),
			Title:         "Gaming tower, RTX 4080",
			BasePrice:     1450,
			AdjustedPrice: 1450,
			Attributes: models.ListingAttributes{
				"gpu_model":       "RTX 4080",
				"gpu_vram_gb":     16,
				"gpu_generation":  40,
				"cpu_model":       "Ryzen 7 7800X3D",
				"ram_capacity_gb": 32,
				"condition_grade": "new",
			},
		},
		{
			ID:            uuid.MustParse("42111111-1111-4111-8111-111111111111"),
			Title:         "Office desktop, GTX 1660",
			BasePrice:     380,
			AdjustedPrice: 380,
			Attributes: models.ListingAttributes{
				"gpu_model":       "GTX 1660",
				"gpu_vram_gb":     6,
				"gpu_generation":  16,
				"cpu_model":       "Core i5-9400",
				"ram_capacity_gb": 16,
				"condition_grade": "used_good",
			},
		},
		{
			ID:            uuid.MustParse("43111111-1111-4111-8111-111111111111"),
			Title:         "Barebones build, no GPU",
			BasePrice:     220,
			AdjustedPrice: 220,
			Attributes: models.ListingAttributes{
				"cpu_model":       "Core i3-12100",
				"ram_capacity_gb": 8,
				"condition_grade": "refurbished",
			},
		},
	}
}
