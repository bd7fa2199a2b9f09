package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/safeflow/procedure-api/internal/handler"
	authService "github.com/safeflow/procedure-api/internal/service/auth"
	"github.com/safeflow/procedure-api/internal/service/authz"
	"github.com/safeflow/procedure-api/internal/service/permission"
)

const ContextClaims = "claims"

type AuthMiddleware struct {
	authSvc  *authService.Service
	resolver *permission.Resolver
}

func NewAuthMiddleware(authSvc *authService.Service, resolver *permission.Resolver) *AuthMiddleware {
	return &AuthMiddleware{
		authSvc:  authSvc,
		resolver: resolver,
	}
}

// Authenticate verifies the bearer token and puts the caller claims in
// context for downstream gate checks.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		tokenClaims, err := m.authSvc.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextClaims, authz.Claims{
			UserID:        tokenClaims.UserID,
			RoleCode:      tokenClaims.RoleCode,
			UnitID:        tokenClaims.UnitID,
			Authenticated: true,
		})
		c.Next()
	}
}

// RequirePermission rejects callers whose effective permission set lacks
// the code. The set is resolved fresh on every request.
func (m *AuthMiddleware) RequirePermission(code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if !claims.Authenticated {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
			c.Abort()
			return
		}

		granted, err := m.resolver.Check(c.Request.Context(), claims.UserID, code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to check permission"))
			c.Abort()
			return
		}
		if !granted {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("permission denied"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// ClaimsFrom returns the caller claims set by Authenticate, or zero claims
// for an unauthenticated request.
func ClaimsFrom(c *gin.Context) authz.Claims {
	if v, ok := c.Get(ContextClaims); ok {
		if claims, ok := v.(authz.Claims); ok {
			return claims
		}
	}
	return authz.Claims{}
}
