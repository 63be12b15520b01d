package auth

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	stateBytes    = 18
	verifierBytes = 32
)

func randomToken(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", newErr("Generating random token error.", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func GenerateState() (string, error) {
	return randomToken(stateBytes)
}

// GenerateVerifier returns a fresh PKCE code verifier. The S256 challenge
// is derived where the authorization URL is built.
func GenerateVerifier() (string, error) {
	return randomToken(verifierBytes)
}
