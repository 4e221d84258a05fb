// Package auth generates and identifies the shared bearer tokens used
// between the CLI, runners and the controller.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateToken returns a new random bearer token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Fingerprint returns a short identifier for a token that is safe to
// log. Never log the token itself.
func Fingerprint(token string) string {
	token = strings.TrimSpace(token)

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])[:8]
}
