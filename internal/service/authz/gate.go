package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
)

// PermissionChecker answers single effective-permission checks. Satisfied
// by the permission resolver.
type PermissionChecker interface {
	Check(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// Claims is the caller identity the auth middleware extracts per request.
type Claims struct {
	UserID        uuid.UUID
	RoleCode      string
	UnitID        uuid.UUID
	Authenticated bool
}

// RequirementKind enumerates the closed set of requirement variants.
type RequirementKind int

const (
	KindRole RequirementKind = iota
	KindUnit
	KindPermission
)

// Requirement is a declarative access rule. A single tagged struct replaces
// per-kind handler types; Evaluate dispatches on Kind.
type Requirement struct {
	Kind RequirementKind

	// KindRole
	AllowedRoles []string

	// KindUnit
	RequireSameUnit    bool
	AllowAdminOverride bool

	// KindPermission
	Permission string
}

func RoleRequirement(roles ...string) Requirement {
	return Requirement{Kind: KindRole, AllowedRoles: roles}
}

func UnitRequirement(requireSameUnit bool) Requirement {
	return Requirement{Kind: KindUnit, RequireSameUnit: requireSameUnit, AllowAdminOverride: true}
}

func PermissionRequirement(code string) Requirement {
	return Requirement{Kind: KindPermission, Permission: code}
}

// Gate evaluates requirements against caller claims. It never mutates state.
type Gate struct {
	resolver PermissionChecker
}

func NewGate(resolver PermissionChecker) *Gate {
	return &Gate{resolver: resolver}
}

// Evaluate checks every requirement; all must hold. An unauthenticated
// caller fails before any requirement is considered.
func (g *Gate) Evaluate(ctx context.Context, claims Claims, requirements ...Requirement) error {
	if !claims.Authenticated || claims.UserID == uuid.Nil {
		return apperrors.Unauthorized(nil)
	}

	for _, req := range requirements {
		ok, err := g.evaluate(ctx, claims, req)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Forbidden(describeFailure(req), nil)
		}
	}
	return nil
}

func (g *Gate) evaluate(ctx context.Context, claims Claims, req Requirement) (bool, error) {
	switch req.Kind {
	case KindRole:
		for _, role := range req.AllowedRoles {
			if claims.RoleCode == role {
				return true, nil
			}
		}
		return false, nil

	case KindUnit:
		if req.AllowAdminOverride && claims.RoleCode == model.RoleAdmin {
			return true, nil
		}
		if !req.RequireSameUnit {
			return true, nil
		}
		// Membership in some unit is what the rule demands; the data layer
		// additionally scopes queries to the caller's own unit.
		return claims.UnitID != uuid.Nil, nil

	case KindPermission:
		return g.resolver.Check(ctx, claims.UserID, req.Permission)

	default:
		return false, fmt.Errorf("unknown requirement kind: %d", req.Kind)
	}
}

func describeFailure(req Requirement) string {
	switch req.Kind {
	case KindRole:
		return "role not permitted"
	case KindUnit:
		return "unit membership required"
	case KindPermission:
		return fmt.Sprintf("missing permission %s", req.Permission)
	default:
		return "forbidden"
	}
}
