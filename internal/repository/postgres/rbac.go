package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
)

func (r *rbacRepository) GetRoleByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	query := `
		SELECT id, code, name, is_system_role, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	var role model.Role
	err := r.db.GetContext(ctx, &role, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("role", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

func (r *rbacRepository) GetRoleByCode(ctx context.Context, code string) (*model.Role, error) {
	query := `
		SELECT id, code, name, is_system_role, created_at, updated_at
		FROM roles
		WHERE code = $1
	`
	var role model.Role
	err := r.db.GetContext(ctx, &role, query, code)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("role", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by code: %w", err)
	}
	return &role, nil
}

func (r *rbacRepository) ListRolePermissionCodes(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	query := `
		SELECT p.code
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		WHERE rp.role_id = $1
	`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	return codes, nil
}

func (r *rbacRepository) ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]*model.UserPermissionOverride, error) {
	query := `
		SELECT o.user_id, o.permission_id, p.code, o.is_granted
		FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.user_id = $1
	`
	var overrides []*model.UserPermissionOverride
	if err := r.db.SelectContext(ctx, &overrides, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user overrides: %w", err)
	}
	return overrides, nil
}

func (r *rbacRepository) GetPermissionByCode(ctx context.Context, code string) (*model.Permission, error) {
	query := `
		SELECT id, code, module, description, created_at, updated_at
		FROM permissions
		WHERE code = $1
	`
	var permission model.Permission
	err := r.db.GetContext(ctx, &permission, query, code)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("permission", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &permission, nil
}

func (r *rbacRepository) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	query := `
		SELECT id, code, module, description, created_at, updated_at
		FROM permissions
		ORDER BY module ASC, code ASC
	`
	var permissions []*model.Permission
	if err := r.db.SelectContext(ctx, &permissions, query); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

func (r *rbacRepository) UpsertUserOverride(ctx context.Context, userID, permissionID uuid.UUID, granted bool) error {
	query := `
		INSERT INTO user_permission_overrides (user_id, permission_id, is_granted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, permission_id)
		DO UPDATE SET is_granted = EXCLUDED.is_granted, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, userID, permissionID, granted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert user override: %w", err)
	}
	return nil
}

func (r *rbacRepository) DeleteUserOverride(ctx context.Context, userID, permissionID uuid.UUID) error {
	query := `
		DELETE FROM user_permission_overrides
		WHERE user_id = $1 AND permission_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, userID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to delete user override: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("override", nil)
	}

	return nil
}
