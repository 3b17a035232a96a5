package auth

import (
	"errors"
	"strings"
)

const (
	minHandleLen = 3
	maxHandleLen = 30
)

// ErrInvalidHandle is returned for handles that are empty or use characters outside [a-z0-9._].
var ErrInvalidHandle = errors.New("handle must be 3-30 characters of a-z, 0-9, '.' or '_'")

// NormalizeHandle trims whitespace, drops one leading '@' and lower-cases the result.
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(strings.TrimSpace(h))
}

// ValidateHandle normalizes raw and checks the allowed charset and length.
func ValidateHandle(raw string) (string, error) {
	h := NormalizeHandle(raw)
	if len(h) < minHandleLen || len(h) > maxHandleLen {
		return "", ErrInvalidHandle
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
		default:
			return "", ErrInvalidHandle
		}
	}
	return h, nil
}
