package permission

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
	"github.com/safeflow/procedure-api/internal/service/audit"
)

// Service manages per-user overrides and exposes the resolved view. Route
// guards decide who may call the mutating methods.
type Service struct {
	rbac     repository.RBACRepository
	resolver *Resolver
	auditor  *audit.Emitter
}

func NewService(rbac repository.RBACRepository, resolver *Resolver, auditor *audit.Emitter) *Service {
	return &Service{
		rbac:     rbac,
		resolver: resolver,
		auditor:  auditor,
	}
}

// SetOverride records an explicit grant or revoke for (user, code). At most
// one override row exists per pair; a second call replaces the first.
func (s *Service) SetOverride(ctx context.Context, actorID, userID uuid.UUID, code string, granted bool) error {
	perm, err := s.rbac.GetPermissionByCode(ctx, code)
	if err != nil {
		return err
	}

	if err := s.rbac.UpsertUserOverride(ctx, userID, perm.ID, granted); err != nil {
		return err
	}

	s.auditor.Emit(ctx, model.AuditOverrideChanged, actorID, "user", userID, map[string]any{
		"permission": code,
		"is_granted": granted,
	})
	return nil
}

// ClearOverride removes the override so the role baseline applies again.
func (s *Service) ClearOverride(ctx context.Context, actorID, userID uuid.UUID, code string) error {
	perm, err := s.rbac.GetPermissionByCode(ctx, code)
	if err != nil {
		return err
	}

	if err := s.rbac.DeleteUserOverride(ctx, userID, perm.ID); err != nil {
		return err
	}

	s.auditor.Emit(ctx, model.AuditOverrideChanged, actorID, "user", userID, map[string]any{
		"permission": code,
		"cleared":    true,
	})
	return nil
}

// Effective returns the user's resolved permission codes, sorted.
func (s *Service) Effective(ctx context.Context, userID uuid.UUID) ([]string, error) {
	set, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Check reports whether the user holds the permission.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return s.resolver.Check(ctx, userID, code)
}
