package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
)

// AccountLookup loads the account behind a session.
type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Advertiser, error)
}

// ErrAccountSuspended is returned by CheckActive for suspended accounts.
var ErrAccountSuspended = errors.New("account suspended")

// CheckActive returns nil when the account exists and is not suspended.
func CheckActive(ctx context.Context, accounts AccountLookup, id uuid.UUID) error {
	adv, err := accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if adv.Status == models.AccountStatusSuspended {
		return ErrAccountSuspended
	}
	return nil
}

// ActiveAccount rejects sessions whose account was deleted or suspended after the token was issued.
// It must run after JWT.
func ActiveAccount(accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := session.FromGin(c)
		if err != nil {
			response.Unauthorized(c, "missing user context")
			return
		}
		switch err := CheckActive(c.Request.Context(), accounts, sess.ID); {
		case err == nil:
			c.Next()
		case errors.Is(err, ErrAccountSuspended):
			response.Forbidden(c, "account suspended")
		case errors.Is(err, auth.ErrNotFound):
			response.Unauthorized(c, "account no longer exists")
		default:
			response.Internal(c, "failed to load account")
		}
	}
}
