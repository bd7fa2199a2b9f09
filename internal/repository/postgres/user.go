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

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AppUser, error) {
	query := `
		SELECT id, email, full_name, password_hash, role_id, unit_id, is_active,
		       last_login_at, created_at, updated_at
		FROM app_users
		WHERE id = $1
	`
	var user model.AppUser
	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.AppUser, error) {
	query := `
		SELECT id, email, full_name, password_hash, role_id, unit_id, is_active,
		       last_login_at, created_at, updated_at
		FROM app_users
		WHERE email = $1
	`
	var user model.AppUser
	err := r.db.GetContext(ctx, &user, query, email)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE app_users
		SET last_login_at = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
