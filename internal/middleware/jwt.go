package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/neetpg/battle-backend/internal/response"
	"github.com/neetpg/battle-backend/internal/service"
)

// ContextKeyClaims is the Gin context key for operator claims.
const ContextKeyClaims = "claims"

// TokenValidator validates operator tokens.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.OperatorClaims, error)
}

// RequireOperatorJWT validates an operator bearer token.
func RequireOperatorJWT(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the operator claims from the Gin context.
func GetClaims(c *gin.Context) *service.OperatorClaims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*service.OperatorClaims)
	return claims
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
