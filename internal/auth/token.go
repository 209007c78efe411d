// Package auth reads the participant identity out of the access token the
// authority issued. Signatures are checked server side; the client only
// needs the claims.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoIdentity   = errors.New("no username configured and none in token")
)

// Claims for access tokens issued by the authority.
type Claims struct {
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsGuest     bool   `json:"is_guest,omitempty"`
	jwt.RegisteredClaims
}

// Name is the username the room will know us by.
func (c *Claims) Name() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return c.Subject
	}
}

// ParseClaims decodes token without verifying its signature and rejects it
// when it expired before now.
func ParseClaims(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// ResolveUsername picks the configured username, falling back to the one
// carried by token.
func ResolveUsername(configured, token string, now time.Time) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	if token == "" {
		return "", ErrNoIdentity
	}
	claims, err := ParseClaims(token, now)
	if err != nil {
		return "", err
	}
	if name := claims.Name(); name != "" {
		return name, nil
	}
	return "", ErrNoIdentity
}
