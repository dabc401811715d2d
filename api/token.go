package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeekExpiry reads the exp claim of a JWT without verifying its signature.
// Signature validation belongs to the auth service; this is for display and
// diagnostics only (e.g. showing when the stored access token runs out).
func PeekExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}
