package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"github.com/latchkey-auth/latchkey/internal/models"
)

// secretLength is the raw entropy per shared secret (256 bits)
const secretLength = 32

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh base32 shared secret for authenticator
// pairing. It fails rather than degrade to a weaker source when the
// system entropy pool is unavailable.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSecureRandomUnavailable, err)
	}
	return secretEncoding.EncodeToString(buf), nil
}
