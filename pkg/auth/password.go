package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 14 // matches the identity provider's hashing cost
)

// HashPassword produces a bcrypt hash. The identity provider owns password
// storage; this exists for fixtures and local seeding.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword checks a plaintext password against a bcrypt hash
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// BcryptVerifier exposes the comparison as a capability object for the
// verification gate
type BcryptVerifier struct{}

// NewBcryptVerifier creates a BcryptVerifier
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare checks a plaintext password against a bcrypt hash
func (v *BcryptVerifier) Compare(hash, password string) error {
	return ComparePassword(hash, password)
}
