package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// newState generates an unguessable state token (32 random bytes, base64url)
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newCodeVerifier generates a PKCE code verifier
func newCodeVerifier() string {
	return oauth2.GenerateVerifier()
}
