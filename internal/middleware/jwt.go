package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// JWT returns a middleware that validates the bearer token and attaches the session.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			return
		}
		token, ok := BearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		session.Attach(c, claims.Session())
		c.Next()
	}
}
