package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gloads/portal/pkg/utils"
)

// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens.
var ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

const resetKeyPrefix = "auth:reset:"

// ResetTokens stores single-use password reset tokens in Redis.
type ResetTokens struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResetTokens creates a token store whose tokens live for ttl.
func NewResetTokens(client *redis.Client, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ResetTokens{client: client, ttl: ttl}
}

// Issue creates a token for the account and returns it with its expiry.
func (s *ResetTokens) Issue(ctx context.Context, advertiserID uuid.UUID) (string, time.Time, error) {
	token, err := utils.RandomToken(24)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.client.Set(ctx, resetKeyPrefix+token, advertiserID.String(), s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("store reset token: %w", err)
	}
	return token, time.Now().Add(s.ttl), nil
}

// Consume atomically removes the token and returns the account it was issued for.
func (s *ResetTokens) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrResetTokenInvalid
	}
	val, err := s.client.GetDel(ctx, resetKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrResetTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("consume reset token: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrResetTokenInvalid
	}
	return id, nil
}
