package jwtx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParseUnverified decodes the claims of token without checking its
// signature. Use it only to read metadata (exp, iss, sub) of a token the
// caller already trusts or is about to hand to a party that will verify it.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return claims, nil
}

// RemainingLifetime returns how long token stays valid after now according
// to its exp claim.
func RemainingLifetime(token string, now time.Time) (time.Duration, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return 0, err
	}

	if claims.ExpiresAt == nil {
		return 0, ErrMissingExp
	}

	remaining := claims.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0, ErrExpired
	}

	return remaining, nil
}
