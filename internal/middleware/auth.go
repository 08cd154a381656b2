package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/handler"
	"github.com/geoclinic/clinic-api/internal/model"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

// TokenValidator resolves a bearer token into the caller's identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the caller's id and
// role on the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			handler.RespondError(c, apperrors.Unauthorized(err))
			return
		}

		handler.SetIdentity(c, claims)
		c.Next()
	}
}

// RequireCapability rejects callers whose role lacks capability with 403.
func RequireCapability(capability model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, ok := handler.Identity(c)
		if !ok {
			handler.RespondError(c, apperrors.Unauthorized(fmt.Errorf("no authenticated caller")))
			return
		}
		if !role.Can(capability) {
			handler.RespondError(c, apperrors.AuthorizationDenied(fmt.Sprintf("role %s lacks capability %d", role, capability)))
			return
		}
		c.Next()
	}
}
