package models

import (
	"time"
)

// TwoFactorState is the derived lifecycle state of an account's second factor
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorPending  TwoFactorState = "pending_confirmation"
	TwoFactorActive   TwoFactorState = "active"
)

// TwoFactorRecord holds the TOTP enrollment state for a single account.
// Secrets are plaintext base32 in memory; the repository encrypts them at rest.
// All transitions go through the methods below so the invariants hold:
// Enforced is true exactly when a confirmed secret exists, and
// LastConsumedStep never decreases while active.
type TwoFactorRecord struct {
	AccountID        string
	ConfirmedSecret  string // active secret, empty unless enforced
	PendingSecret    string // candidate secret awaiting confirmation
	Enforced         bool
	LastConsumedStep int64 // highest accepted time step, 0 before first accept
	Version          int64 // optimistic concurrency token, 0 = never persisted
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTwoFactorRecord returns a disabled record for the given account
func NewTwoFactorRecord(accountID string) *TwoFactorRecord {
	now := time.Now().UTC()
	return &TwoFactorRecord{
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State derives the lifecycle state; it is never stored directly
func (r *TwoFactorRecord) State() TwoFactorState {
	switch {
	case r.Enforced && r.ConfirmedSecret != "":
		return TwoFactorActive
	case r.PendingSecret != "":
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}

// Rotate stages a new pending secret, replacing any earlier candidate.
// The replaced secret is dead immediately even if the user already scanned it.
func (r *TwoFactorRecord) Rotate(secret string) error {
	if r.State() == TwoFactorActive {
		return ErrInvalidState
	}
	r.PendingSecret = secret
	return nil
}

// Activate promotes the pending secret to the confirmed one and begins
// enforcement. The step of the code that proved possession is recorded so
// the same code cannot be replayed at first login.
func (r *TwoFactorRecord) Activate(step int64) error {
	if r.State() != TwoFactorPending {
		return ErrInvalidState
	}
	r.ConfirmedSecret = r.PendingSecret
	r.PendingSecret = ""
	r.Enforced = true
	r.LastConsumedStep = step
	return nil
}

// Deactivate clears all secrets and stops enforcement
func (r *TwoFactorRecord) Deactivate() error {
	if r.State() != TwoFactorActive {
		return ErrInvalidState
	}
	r.ConfirmedSecret = ""
	r.PendingSecret = ""
	r.Enforced = false
	r.LastConsumedStep = 0
	return nil
}

// Consume records an accepted code's time step. A step at or below the
// last consumed one is a replay and is rejected with the same error a
// wrong code produces.
func (r *TwoFactorRecord) Consume(step int64) error {
	if r.State() != TwoFactorActive {
		return ErrInvalidState
	}
	if step <= r.LastConsumedStep {
		return ErrCodeInvalid
	}
	r.LastConsumedStep = step
	return nil
}

// EnrollmentSetup is handed back when enrollment begins or rotates
type EnrollmentSetup struct {
	Secret string
	URI    string
}

// TwoFactorStatus reports the current state for display
type TwoFactorStatus struct {
	State    TwoFactorState
	Enforced bool
	URI      string // set while pending so the pairing QR can be redisplayed
}
