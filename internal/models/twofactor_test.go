package models

import (
	"errors"
	"testing"
)

func TestNewTwoFactorRecord(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")

	if record.AccountID != "acct-1" {
		t.Errorf("expected account ID acct-1, got %s", record.AccountID)
	}
	if record.State() != TwoFactorDisabled {
		t.Errorf("expected new record to be disabled, got %s", record.State())
	}
	if record.Version != 0 {
		t.Errorf("expected version 0 before first save, got %d", record.Version)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestTwoFactorRecord_State(t *testing.T) {
	tests := []struct {
		name     string
		record   TwoFactorRecord
		expected TwoFactorState
	}{
		{name: "empty record", record: TwoFactorRecord{}, expected: TwoFactorDisabled},
		{name: "pending secret only", record: TwoFactorRecord{PendingSecret: "SECRET"}, expected: TwoFactorPending},
		{name: "confirmed and enforced", record: TwoFactorRecord{ConfirmedSecret: "SECRET", Enforced: true}, expected: TwoFactorActive},
		{name: "active with staged rotation", record: TwoFactorRecord{ConfirmedSecret: "OLD", PendingSecret: "NEW", Enforced: true}, expected: TwoFactorActive},
		{name: "confirmed but not enforced", record: TwoFactorRecord{ConfirmedSecret: "SECRET"}, expected: TwoFactorDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if state := tt.record.State(); state != tt.expected {
				t.Errorf("expected state %s, got %s", tt.expected, state)
			}
		})
	}
}

func TestTwoFactorRecord_Rotate(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")

	if err := record.Rotate("FIRST"); err != nil {
		t.Fatalf("expected rotate from disabled to succeed, got %v", err)
	}
	if record.State() != TwoFactorPending {
		t.Errorf("expected pending state, got %s", record.State())
	}

	// Restarting enrollment replaces the candidate outright
	if err := record.Rotate("SECOND"); err != nil {
		t.Fatalf("expected rotate from pending to succeed, got %v", err)
	}
	if record.PendingSecret != "SECOND" {
		t.Errorf("expected pending secret SECOND, got %s", record.PendingSecret)
	}
}

func TestTwoFactorRecord_Rotate_RejectedWhileActive(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := record.Activate(100); err != nil {
		t.Fatal(err)
	}

	err := record.Rotate("ANOTHER")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if record.ConfirmedSecret != "SECRET" {
		t.Errorf("expected confirmed secret untouched, got %s", record.ConfirmedSecret)
	}
}

func TestTwoFactorRecord_Activate(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}

	if err := record.Activate(12345); err != nil {
		t.Fatalf("expected activate from pending to succeed, got %v", err)
	}
	if record.State() != TwoFactorActive {
		t.Errorf("expected active state, got %s", record.State())
	}
	if record.ConfirmedSecret != "SECRET" {
		t.Errorf("expected pending secret promoted, got %s", record.ConfirmedSecret)
	}
	if record.PendingSecret != "" {
		t.Errorf("expected pending secret cleared, got %s", record.PendingSecret)
	}
	if !record.Enforced {
		t.Error("expected enforcement to begin")
	}
	if record.LastConsumedStep != 12345 {
		t.Errorf("expected confirmation step 12345 recorded, got %d", record.LastConsumedStep)
	}
}

func TestTwoFactorRecord_Activate_RequiresPending(t *testing.T) {
	disabled := NewTwoFactorRecord("acct-1")
	if err := disabled.Activate(100); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from disabled, got %v", err)
	}

	active := NewTwoFactorRecord("acct-2")
	if err := active.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := active.Activate(100); err != nil {
		t.Fatal(err)
	}
	if err := active.Activate(200); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from active, got %v", err)
	}
}

func TestTwoFactorRecord_Deactivate(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := record.Activate(100); err != nil {
		t.Fatal(err)
	}

	if err := record.Deactivate(); err != nil {
		t.Fatalf("expected deactivate from active to succeed, got %v", err)
	}
	if record.State() != TwoFactorDisabled {
		t.Errorf("expected disabled state, got %s", record.State())
	}
	if record.ConfirmedSecret != "" || record.PendingSecret != "" {
		t.Error("expected all secrets cleared")
	}
	if record.Enforced {
		t.Error("expected enforcement stopped")
	}
	if record.LastConsumedStep != 0 {
		t.Errorf("expected consumed step reset, got %d", record.LastConsumedStep)
	}
}

func TestTwoFactorRecord_Deactivate_RequiresActive(t *testing.T) {
	disabled := NewTwoFactorRecord("acct-1")
	if err := disabled.Deactivate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from disabled, got %v", err)
	}

	pending := NewTwoFactorRecord("acct-2")
	if err := pending.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := pending.Deactivate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from pending, got %v", err)
	}
}

func TestTwoFactorRecord_Consume(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := record.Activate(100); err != nil {
		t.Fatal(err)
	}

	if err := record.Consume(101); err != nil {
		t.Fatalf("expected later step to be accepted, got %v", err)
	}
	if record.LastConsumedStep != 101 {
		t.Errorf("expected step 101 recorded, got %d", record.LastConsumedStep)
	}
}

func TestTwoFactorRecord_Consume_RejectsReplay(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := record.Activate(100); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		step int64
	}{
		{name: "same step as confirmation", step: 100},
		{name: "earlier step", step: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Replays fail with the same error as a wrong code
			if err := record.Consume(tt.step); !errors.Is(err, ErrCodeInvalid) {
				t.Errorf("expected ErrCodeInvalid, got %v", err)
			}
			if record.LastConsumedStep != 100 {
				t.Errorf("expected consumed step unchanged, got %d", record.LastConsumedStep)
			}
		})
	}
}

func TestTwoFactorRecord_Consume_RequiresActive(t *testing.T) {
	record := NewTwoFactorRecord("acct-1")
	if err := record.Consume(1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from disabled, got %v", err)
	}

	if err := record.Rotate("SECRET"); err != nil {
		t.Fatal(err)
	}
	if err := record.Consume(1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from pending, got %v", err)
	}
}
