package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/pkg/metrics"

	"github.com/safeflow/procedure-api/internal/repository"
)

// Resolver computes the effective permission set for a user: role baseline
// plus per-user overrides. Every call reads the current rows; there is no
// cache, so a role or override change is visible to the very next check.
type Resolver struct {
	rbac    repository.RBACRepository
	users   repository.UserRepository
	metrics *metrics.Metrics
}

func NewResolver(rbac repository.RBACRepository, users repository.UserRepository, metrics *metrics.Metrics) *Resolver {
	return &Resolver{
		rbac:    rbac,
		users:   users,
		metrics: metrics,
	}
}

// Resolve returns the effective permission codes for the user. Inactive
// users resolve to the empty set regardless of role or overrides.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective := make(map[string]struct{})
	if !user.IsActive {
		return effective, nil
	}

	baseline, err := r.rbac.ListRolePermissionCodes(ctx, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to build role baseline: %w", err)
	}
	for _, code := range baseline {
		effective[code] = struct{}{}
	}

	// Overrides are applied after the baseline so they win either way:
	// a grant adds a code the role never had, a revoke removes one it did.
	overrides, err := r.rbac.ListUserOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user overrides: %w", err)
	}
	for _, o := range overrides {
		if o.IsGranted {
			effective[o.Code] = struct{}{}
		} else {
			delete(effective, o.Code)
		}
	}

	return effective, nil
}

// Check reports whether the user effectively holds the permission code.
func (r *Resolver) Check(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	effective, err := r.Resolve(ctx, userID)
	if err != nil {
		r.metrics.PermissionChecks.WithLabelValues("error").Inc()
		return false, err
	}
	if _, ok := effective[code]; ok {
		r.metrics.PermissionChecks.WithLabelValues("granted").Inc()
		return true, nil
	}
	r.metrics.PermissionChecks.WithLabelValues("denied").Inc()
	return false, nil
}
