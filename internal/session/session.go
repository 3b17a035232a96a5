// Package session carries the authenticated identity through a request.
package session

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gloads/portal/internal/models"
)

// ErrNoSession is returned when a request carries no usable identity.
var ErrNoSession = errors.New("no active session")

// GinKey is the gin context key holding the Session.
const GinKey = "session"

type ctxKey struct{}

// Session is the identity every authenticated handler works with.
type Session struct {
	ID          uuid.UUID   `json:"id"`
	Handle      string      `json:"handle"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
}

// IsAdmin reports whether the session has the admin role.
func (s Session) IsAdmin() bool { return s.Role == models.RoleAdmin }

// Valid reports whether the session identifies an account.
func (s Session) Valid() bool {
	return s.ID != uuid.Nil && s.Handle != "" && (s.Role == models.RoleAdvertiser || s.Role == models.RoleAdmin)
}

// FromAdvertiser builds a Session for an account.
func FromAdvertiser(a *models.Advertiser) Session {
	return Session{
		ID:          a.ID,
		Handle:      a.Handle,
		Email:       a.Email,
		DisplayName: a.DisplayName(),
		Role:        a.Role,
	}
}

// WithContext returns a copy of ctx carrying s.
func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, or ErrNoSession when absent or malformed.
func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || !s.Valid() {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Attach stores s on the gin context and on its request context.
func Attach(c *gin.Context, s Session) {
	c.Set(GinKey, s)
	c.Request = c.Request.WithContext(WithContext(c.Request.Context(), s))
}

// FromGin returns the session attached to c.
func FromGin(c *gin.Context) (Session, error) {
	if v, ok := c.Get(GinKey); ok {
		if s, ok := v.(Session); ok && s.Valid() {
			return s, nil
		}
		return Session{}, ErrNoSession
	}
	return FromContext(c.Request.Context())
}
