package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// randomBytes is the entropy of state and nonce values. 32 bytes encode to 43
// base64url characters.
const randomBytes = 32

// GenerateState generates a random state parameter for an authorization
// request. The state links the redirect back to the request that started it.
func GenerateState() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateNonce generates a random nonce that is echoed in the ID token.
func GenerateNonce() (string, error) {
	return GenerateState()
}
