package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// ListingIndex answers "which listings could this scope condition
// match" against the attributes JSONB column. Equality constraints on
// attribute fields translate to a containment query served by the GIN
// index; anything else degrades to a conservative full scan, flagged so
// the scheduler can surface it.
type ListingIndex struct {
	db *sql.DB
}

// NewListingIndex creates a new listing candidate index
func NewListingIndex(db *sql.DB) *ListingIndex {
	return &ListingIndex{db: db}
}

// Candidates returns the ids of listings that may match the scope.
// The result may over-approximate (workers re-check the full condition)
// but must never miss a matching listing.
func (x *ListingIndex) Candidates(ctx context.Context, scope *models.ConditionNode) ([]uuid.UUID, bool, error) {
	// A nil scope matches every listing; the full catalog is the exact
	// answer, not a degraded one.
	if scope == nil {
		ids, err := x.allIDs(ctx)
		return ids, false, err
	}

	constraints, indexable := extractEqualityConstraints(scope)
	if !indexable || len(constraints) == 0 {
		ids, err := x.allIDs(ctx)
		return ids, true, err
	}

	doc, err := json.Marshal(constraints)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal index constraints: %w", err)
	}

	rows, err := x.db.QueryContext(ctx,
		`SELECT id FROM listings WHERE attributes @> $1::jsonb`, doc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query candidate listings: %w", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	return ids, false, err
}

// extractEqualityConstraints walks the scope tree and pulls out the
// equality leaves that can be served by JSONB containment. Only a leaf
// or a top-level AND of leaves is indexable: OR branches, ordered
// comparisons, and negations would make containment under-approximate.
func extractEqualityConstraints(node *models.ConditionNode) (map[string]interface{}, bool) {
	constraints := make(map[string]interface{})

	var leaves []*models.ConditionNode
	if node.IsGroup() {
		if node.LogicalOperator != models.LogicalAnd {
			return nil, false
		}
		for i := range node.Children {
			child := &node.Children[i]
			if child.IsGroup() {
				return nil, false
			}
			leaves = append(leaves, child)
		}
	} else {
		leaves = append(leaves, node)
	}

	for _, leaf := range leaves {
		if leaf.Operator != models.OpEquals {
			return nil, false
		}
		if leaf.FieldName == "base_price" {
			// Not part of the attributes document.
			return nil, false
		}
		value, ok := normalizeConstraintValue(leaf.FieldType, leaf.Value)
		if !ok {
			return nil, false
		}
		constraints[leaf.FieldName] = value
	}
	return constraints, true
}

// normalizeConstraintValue coerces a leaf value to its declared field
// type before it goes into the containment document. The evaluator
// coerces both sides of an equality, so a number-typed leaf written as
// "16" must still match the numeric attribute 16; JSONB containment
// compares raw JSON types and needs the canonical form. Values that
// cannot be coerced, and dates (which have several textual forms that
// compare equal), report not-indexable so the caller falls back to a
// full scan.
func normalizeConstraintValue(ft models.FieldType, v interface{}) (interface{}, bool) {
	switch ft {
	case models.FieldTypeNumber:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			return f, err == nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			return f, err == nil
		}
		return nil, false
	case models.FieldTypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(b)
			return parsed, err == nil
		}
		return nil, false
	case models.FieldTypeString, models.FieldTypeEnum:
		s, ok := v.(string)
		return s, ok
	default:
		return nil, false
	}
}

func (x *ListingIndex) allIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT id FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]uuid.UUID, error) {
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
