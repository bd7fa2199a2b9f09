package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/safeflow/procedure-api/pkg/auth"
	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
)

// Service is the token-issuing front door. The core treats its claims as
// trusted once a token validates.
type Service struct {
	users  repository.UserRepository
	rbac   repository.RBACRepository
	jwtSvc auth.JWTService
	expiry time.Duration
}

func NewService(users repository.UserRepository, rbac repository.RBACRepository, jwtSvc auth.JWTService, expiry time.Duration) *Service {
	return &Service{
		users:  users,
		rbac:   rbac,
		jwtSvc: jwtSvc,
		expiry: expiry,
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	if !user.IsActive {
		return nil, apperrors.Unauthorized(nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	// Role code is derived from the roles table at login; RoleID is the
	// authoritative link.
	role, err := s.rbac.GetRoleByID(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtSvc.GenerateAccessToken(user, role.Code)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.expiry.Seconds()),
	}, nil
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
