package middleware

import (
	"net/http"
	"strings"

	"cityflow/neurotraff/services"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the validated *services.Claims.
const ClaimsKey = "claims"

// RequireAuth rejects requests without a valid "Bearer <jwt>" Authorization header.
func RequireAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing bearer token"})
			return
		}

		claims, err := auth.ValidateToken(strings.TrimSpace(tokenStr))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid or expired token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
