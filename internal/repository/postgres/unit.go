package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
)

func (r *unitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	query := `
		SELECT id, name, type, parent_unit_id, created_at, updated_at
		FROM units
		WHERE id = $1
	`
	var unit model.Unit
	err := r.db.GetContext(ctx, &unit, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("unit", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return &unit, nil
}

func (r *unitRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM units WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("failed to check unit existence: %w", err)
	}
	return exists, nil
}

func (r *unitRepository) IsSelfOrAncestor(ctx context.Context, unitID, descendantID uuid.UUID) (bool, error) {
	// Walks the unit tree upwards from the descendant.
	query := `
		WITH RECURSIVE lineage AS (
			SELECT id, parent_unit_id FROM units WHERE id = $1
			UNION ALL
			SELECT u.id, u.parent_unit_id
			FROM units u
			JOIN lineage l ON u.id = l.parent_unit_id
		)
		SELECT EXISTS (SELECT 1 FROM lineage WHERE id = $2)
	`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, descendantID, unitID); err != nil {
		return false, fmt.Errorf("failed to resolve unit lineage: %w", err)
	}
	return ok, nil
}
