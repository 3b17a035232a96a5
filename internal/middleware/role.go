package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		sess, err := session.FromGin(c)
		if err != nil {
			response.Unauthorized(c, "missing user context")
			return
		}
		if _, ok := allowed[sess.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			return
		}
		c.Next()
	}
}
