package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	sessionCookieName = "monitoroor_session"
	sessionTokenBytes = 32
	apiKeyBytes       = 24
	apiKeyPrefix      = "mk_"
)

// generateSessionToken creates a cryptographically random session token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// generateAPIKey creates a new API key, returning the plaintext (shown
// once), the stored hash, and a display prefix.
func generateAPIKey() (plaintext, hash, prefix string, err error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext = apiKeyPrefix + hex.EncodeToString(b)
	hash = hashAPIKey(plaintext)
	prefix = plaintext[:len(apiKeyPrefix)+8]

	return plaintext, hash, prefix, nil
}

// hashAPIKey returns the hex sha256 digest used to look up stored keys.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}
