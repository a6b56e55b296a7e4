package oidc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the display subset of ID token claims.
type Identity struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	Issuer            string
	ExpiresAt         time.Time
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// IdentityFromIDToken reads the claims of an ID token WITHOUT verifying its
// signature. Only use the result for display; the token was verified when it
// was obtained.
func IdentityFromIDToken(raw string) (*Identity, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token: %w", err)
	}

	id := &Identity{
		Subject:           claims.Subject,
		Email:             claims.Email,
		Name:              claims.Name,
		PreferredUsername: claims.PreferredUsername,
		Issuer:            claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// DisplayName picks the most readable identifier available.
func (i *Identity) DisplayName() string {
	switch {
	case i.PreferredUsername != "":
		return i.PreferredUsername
	case i.Email != "":
		return i.Email
	case i.Name != "":
		return i.Name
	default:
		return i.Subject
	}
}
