package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/auth"
)

const operatorContextKey = "operator"

func OperatorFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(operatorContextKey)
	if !ok {
		return "", false
	}
	op, ok := v.(string)
	return op, ok && op != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(operatorContextKey, claims.Operator)
		c.Next()
	}
}
