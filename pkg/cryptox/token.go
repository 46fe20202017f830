package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// APIKeySize is the number of random bytes behind a generated API key
// (43 chars base64url).
const APIKeySize = 32

// GenerateAPIKey returns prefix followed by a random base64url secret.
func GenerateAPIKey(prefix string) (string, error) {
	buf := make([]byte, APIKeySize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns a SHA-256 fingerprint of a credential, base64url
// encoded. Sets keyed by fingerprint never hold the credential itself.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
