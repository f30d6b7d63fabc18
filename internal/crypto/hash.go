package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used for every stored password hash.
const BcryptCost = 10

var ErrEmptyPassword = errors.New("password cannot be empty")

// HashPassword hashes a password with bcrypt. The salt is generated per call,
// so hashing the same password twice yields different strings.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether password matches the bcrypt hash.
// A malformed hash is treated as a mismatch.
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
