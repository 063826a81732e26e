package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/latchkey-auth/latchkey/internal/models"
)

// TOTPConfig controls code generation and the verification window
type TOTPConfig struct {
	Issuer string
	Period uint // step length in seconds
	Skew   uint // steps accepted on each side of the current one
	Digits int  // 6 or 8
}

// TOTPManager computes and verifies RFC 6238 codes (HMAC-SHA1).
// Verification reports the time step a code matched so callers can
// persist it and refuse replays of the same step.
type TOTPManager struct {
	issuer string
	period uint
	skew   uint
	digits otp.Digits
}

// NewTOTPManager creates a manager, defaulting period to 30s and digits
// to six. Skew is taken as given: zero means no drift allowance.
func NewTOTPManager(cfg TOTPConfig) *TOTPManager {
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Latchkey"
	}
	return &TOTPManager{
		issuer: cfg.Issuer,
		period: cfg.Period,
		skew:   cfg.Skew,
		digits: otp.Digits(cfg.Digits),
	}
}

// Step returns the index of the time step containing t
func (tm *TOTPManager) Step(t time.Time) int64 {
	return t.Unix() / int64(tm.period)
}

// CodeAt computes the zero-padded code for the step containing t
func (tm *TOTPManager) CodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, tm.generateOpts())
	if err != nil {
		return "", fmt.Errorf("failed to compute TOTP code: %w", err)
	}
	return code, nil
}

// VerifyCode checks a submitted code against the secret at time t.
// Candidate steps are tried oldest first and every candidate is computed
// regardless of an earlier match, with constant-time comparisons. A code
// that only matches a step at or below lastConsumedStep is a replay and
// fails with the same ErrCodeInvalid a plain mismatch produces.
func (tm *TOTPManager) VerifyCode(secret, code string, t time.Time, lastConsumedStep int64) (int64, error) {
	if len(code) != tm.digits.Length() {
		return 0, models.ErrCodeInvalid
	}

	current := tm.Step(t)
	matched := int64(-1)
	for offset := -int64(tm.skew); offset <= int64(tm.skew); offset++ {
		step := current + offset
		if step < 0 {
			continue
		}
		stepTime := time.Unix(step*int64(tm.period), 0).UTC()
		want, err := totp.GenerateCodeCustom(secret, stepTime, tm.generateOpts())
		if err != nil {
			return 0, fmt.Errorf("failed to compute candidate code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 && matched < 0 {
			matched = step
		}
	}

	if matched < 0 || matched <= lastConsumedStep {
		return 0, models.ErrCodeInvalid
	}
	return matched, nil
}

// ProvisioningURI renders the otpauth URI a pairing QR code encodes
func (tm *TOTPManager) ProvisioningURI(account, secret string) string {
	return ProvisioningURI(tm.issuer, account, secret, tm.period, tm.digits)
}

func (tm *TOTPManager) generateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    tm.period,
		Digits:    tm.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
