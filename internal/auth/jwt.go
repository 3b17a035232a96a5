package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the session shape carried in the token.
type Claims struct {
	AdvertiserID uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	jwt.RegisteredClaims
}

// Session converts the claims into the request identity.
func (c *Claims) Session() session.Session {
	return session.Session{
		ID:          c.AdvertiserID,
		Handle:      c.Handle,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Role:        models.Role(c.Role),
	}
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for the session.
func (s *JWTService) Generate(sess session.Session) (string, error) {
	now := time.Now()
	claims := Claims{
		AdvertiserID: sess.ID,
		Handle:       sess.Handle,
		Email:        sess.Email,
		DisplayName:  sess.DisplayName,
		Role:         string(sess.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Session().Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
