package auth

import (
	"errors"
	"time"

	"github.com/latchkey-auth/latchkey/internal/models"
)

// PasswordVerifier compares a presented password against a stored hash.
// The identity provider owns hashing policy; this is the only password
// capability the service uses.
type PasswordVerifier interface {
	Compare(hash, password string) error
}

// Gate runs the password check and the TOTP check in fixed order for
// state-changing two-factor operations. The password is always verified
// first and the engine is never consulted on a bad password, so the two
// failure kinds stay distinguishable without leaking why a code failed.
// Failure paths are padded to a common latency band.
type Gate struct {
	passwords PasswordVerifier
	totp      *TOTPManager
	timing    *TimingDelay
}

// NewGate creates a verification gate
func NewGate(passwords PasswordVerifier, totp *TOTPManager, timing *TimingDelay) *Gate {
	return &Gate{
		passwords: passwords,
		totp:      totp,
		timing:    timing,
	}
}

// VerifyPassword checks only the password capability
func (g *Gate) VerifyPassword(passwordHash, password string) error {
	start := time.Now()

	if err := g.passwords.Compare(passwordHash, password); err != nil {
		g.timing.WaitFrom(start, false)
		return models.ErrPasswordInvalid
	}

	g.timing.WaitFrom(start, true)
	return nil
}

// VerifyPasswordAndCode checks the password first, then the code against
// the given secret. Returns the matched time step on success.
func (g *Gate) VerifyPasswordAndCode(passwordHash, password, code, secret string, lastConsumedStep int64, at time.Time) (int64, error) {
	start := time.Now()

	if err := g.passwords.Compare(passwordHash, password); err != nil {
		g.timing.WaitFrom(start, false)
		return 0, models.ErrPasswordInvalid
	}

	step, err := g.totp.VerifyCode(secret, code, at, lastConsumedStep)
	if err != nil {
		g.timing.WaitFrom(start, false)
		if errors.Is(err, models.ErrCodeInvalid) {
			return 0, models.ErrCodeInvalid
		}
		return 0, err
	}

	g.timing.WaitFrom(start, true)
	return step, nil
}

// VerifyCode checks only the TOTP code, for step-up verification where
// the session has already proven the password
func (g *Gate) VerifyCode(secret, code string, lastConsumedStep int64, at time.Time) (int64, error) {
	start := time.Now()

	step, err := g.totp.VerifyCode(secret, code, at, lastConsumedStep)
	if err != nil {
		g.timing.WaitFrom(start, false)
		if errors.Is(err, models.ErrCodeInvalid) {
			return 0, models.ErrCodeInvalid
		}
		return 0, err
	}

	g.timing.WaitFrom(start, true)
	return step, nil
}
