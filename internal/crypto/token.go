package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// OpaqueTokenBytes is the entropy of email verification and password reset tokens.
const OpaqueTokenBytes = 32

// GenerateOpaqueToken returns a random hex token for single-use links.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashOpaqueToken returns the SHA-256 hex digest stored in place of the token.
func HashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
