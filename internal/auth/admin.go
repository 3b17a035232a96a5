package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/pkg/utils"
)

// EnsureAdmin makes sure an admin account with the given handle exists and accepts password.
// An existing advertiser with that handle is promoted.
func EnsureAdmin(ctx context.Context, store Store, handle, password, email string, logger *zap.Logger) (*models.Advertiser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h, err := ValidateHandle(handle)
	if err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("admin password must be at least 6 characters")
	}

	existing, err := store.GetByHandle(ctx, h)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			if err := store.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return nil, err
			}
			existing.Role = models.RoleAdmin
			logger.Info("promoted account to admin", zap.String("handle", h))
		}
		if !utils.CheckPassword(password, existing.Password) {
			hash, err := utils.HashPassword(password)
			if err != nil {
				return nil, err
			}
			if err := store.UpdatePassword(ctx, existing.ID, hash); err != nil {
				return nil, err
			}
			existing.Password = hash
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	adv, err := store.Create(ctx, CreateParams{
		Handle:       h,
		BusinessName: "GloAds",
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("admin account created", zap.String("handle", h))
	return adv, nil
}
