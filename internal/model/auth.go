package model

import (
	"github.com/google/uuid"
)

// TokenClaims is the identity the auth front door attaches to each request.
type TokenClaims struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	RoleCode string    `json:"role_code"`
	UnitID   uuid.UUID `json:"unit_id"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}
