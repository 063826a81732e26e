package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
	"github.com/latchkey-auth/latchkey/internal/repositories"
)

const testPassword = "TestPassword123!"

func testAccount() *models.Account {
	return &models.Account{
		ID:           "acct-1",
		Email:        "user@example.com",
		PasswordHash: "stored-hash",
	}
}

// newTestService wires a service around the given repository and notifier,
// with a directory that knows exactly one account and a gate that accepts
// testPassword without bcrypt cost
func newTestService(records repositories.TwoFactorRepository, notifier SecurityNotifier) (*TwoFactorService, *auth.TOTPManager) {
	totp := auth.NewTOTPManager(auth.TOTPConfig{Issuer: "LatchkeyTest", Period: 30, Skew: 1, Digits: 6})
	directory := &MockAccountDirectory{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			if id == "acct-1" {
				return testAccount(), nil
			}
			return nil, models.ErrNotFound
		},
	}
	svc := NewTwoFactorService(records, directory, totp, NewTestGate(totp, testPassword), notifier, slog.Default())
	return svc, totp
}

// enrollActive drives an account all the way to the active state and
// returns the confirmed secret
func enrollActive(t *testing.T, svc *TwoFactorService, totp *auth.TOTPManager) string {
	t.Helper()

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	code, err := totp.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, code))
	return setup.Secret
}

// ============================================================================
// BeginEnrollment Tests
// ============================================================================

func TestTwoFactorService_BeginEnrollment_Success(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Len(t, setup.Secret, 52)
	assert.True(t, strings.HasPrefix(setup.URI, "otpauth://totp/"))
	assert.Contains(t, setup.URI, setup.Secret)
	assert.Contains(t, setup.URI, "user@example.com")

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPending, record.State())
	assert.Equal(t, setup.Secret, record.PendingSecret)
}

func TestTwoFactorService_BeginEnrollment_RotatesPendingSecret(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	first, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)
	second, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)

	// Only the latest candidate survives
	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, second.Secret, record.PendingSecret)
}

func TestTwoFactorService_BeginEnrollment_RejectedWhileActive(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	enrollActive(t, svc, totp)

	_, err := svc.BeginEnrollment(context.Background(), "acct-1")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTwoFactorService_BeginEnrollment_AccountMissing(t *testing.T) {
	svc, _ := newTestService(NewMemoryTwoFactorRepository(), &MockSecurityNotifier{})

	_, err := svc.BeginEnrollment(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTwoFactorService_BeginEnrollment_SaveConflict(t *testing.T) {
	records := &MockTwoFactorRepository{
		SaveFunc: func(ctx context.Context, record *models.TwoFactorRecord) error {
			return models.ErrConflict
		},
	}
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	_, err := svc.BeginEnrollment(context.Background(), "acct-1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

// ============================================================================
// ConfirmEnrollment Tests
// ============================================================================

func TestTwoFactorService_ConfirmEnrollment_Success(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	var notifiedEmail string
	notifier := &MockSecurityNotifier{
		TwoFactorEnabledFunc: func(ctx context.Context, account *models.Account) error {
			notifiedEmail = account.Email
			return nil
		},
	}
	svc, totp := newTestService(records, notifier)

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	now := time.Now()
	code, err := totp.CodeAt(setup.Secret, now)
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, code)

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", notifiedEmail)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorActive, record.State())
	assert.Equal(t, setup.Secret, record.ConfirmedSecret)
	assert.Empty(t, record.PendingSecret)
	assert.Equal(t, totp.Step(now), record.LastConsumedStep)
}

func TestTwoFactorService_ConfirmEnrollment_WrongPassword(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	notifier := &MockSecurityNotifier{
		TwoFactorEnabledFunc: func(ctx context.Context, account *models.Account) error {
			t.Error("notifier must not fire on failed confirmation")
			return nil
		},
	}
	svc, totp := newTestService(records, notifier)

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)
	code, err := totp.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(context.Background(), "acct-1", "wrong-password", code)

	assert.ErrorIs(t, err, models.ErrPasswordInvalid)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPending, record.State())
}

func TestTwoFactorService_ConfirmEnrollment_WrongCode(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	_, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, "000000")

	assert.ErrorIs(t, err, models.ErrCodeInvalid)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPending, record.State())
}

func TestTwoFactorService_ConfirmEnrollment_NeverStarted(t *testing.T) {
	svc, _ := newTestService(NewMemoryTwoFactorRepository(), &MockSecurityNotifier{})

	err := svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, "123456")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTwoFactorService_ConfirmEnrollment_AlreadyActive(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	secret := enrollActive(t, svc, totp)

	code, err := totp.CodeAt(secret, time.Now())
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, code)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTwoFactorService_ConfirmEnrollment_SaveConflict(t *testing.T) {
	pending := models.NewTwoFactorRecord("acct-1")
	require.NoError(t, pending.Rotate("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"))
	pending.Version = 1

	records := &MockTwoFactorRepository{
		GetFunc: func(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
			copied := *pending
			return &copied, nil
		},
		SaveFunc: func(ctx context.Context, record *models.TwoFactorRecord) error {
			return models.ErrConflict
		},
	}
	svc, totp := newTestService(records, &MockSecurityNotifier{})

	code, err := totp.CodeAt(pending.PendingSecret, time.Now())
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, code)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTwoFactorService_ConfirmEnrollment_NotifierFailureSwallowed(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	notifier := &MockSecurityNotifier{
		TwoFactorEnabledFunc: func(ctx context.Context, account *models.Account) error {
			return errors.New("smtp down")
		},
	}
	svc, totp := newTestService(records, notifier)

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)
	code, err := totp.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)

	// Notification is best-effort; enrollment itself must still commit
	err = svc.ConfirmEnrollment(context.Background(), "acct-1", testPassword, code)
	assert.NoError(t, err)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorActive, record.State())
}

// ============================================================================
// Disable Tests
// ============================================================================

func TestTwoFactorService_Disable_Success(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	var notifiedEmail string
	notifier := &MockSecurityNotifier{
		TwoFactorDisabledFunc: func(ctx context.Context, account *models.Account) error {
			notifiedEmail = account.Email
			return nil
		},
	}
	svc, totp := newTestService(records, notifier)
	enrollActive(t, svc, totp)

	err := svc.Disable(context.Background(), "acct-1", testPassword)

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", notifiedEmail)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorDisabled, record.State())
	assert.Empty(t, record.ConfirmedSecret)
	assert.False(t, record.Enforced)
}

func TestTwoFactorService_Disable_WrongPassword(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	enrollActive(t, svc, totp)

	err := svc.Disable(context.Background(), "acct-1", "wrong-password")

	assert.ErrorIs(t, err, models.ErrPasswordInvalid)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorActive, record.State())
}

func TestTwoFactorService_Disable_WhileDisabled(t *testing.T) {
	svc, _ := newTestService(NewMemoryTwoFactorRepository(), &MockSecurityNotifier{})

	err := svc.Disable(context.Background(), "acct-1", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTwoFactorService_Disable_WhilePending(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	_, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	err = svc.Disable(context.Background(), "acct-1", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

// ============================================================================
// Status Tests
// ============================================================================

func TestTwoFactorService_Status_DisabledWithoutRecord(t *testing.T) {
	svc, _ := newTestService(NewMemoryTwoFactorRepository(), &MockSecurityNotifier{})

	status, err := svc.Status(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorDisabled, status.State)
	assert.False(t, status.Enforced)
	assert.Empty(t, status.URI)
}

func TestTwoFactorService_Status_PendingIncludesURI(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	setup, err := svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)

	status, err := svc.Status(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPending, status.State)
	assert.False(t, status.Enforced)
	assert.Contains(t, status.URI, setup.Secret)
}

func TestTwoFactorService_Status_ActiveOmitsURI(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	enrollActive(t, svc, totp)

	status, err := svc.Status(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorActive, status.State)
	assert.True(t, status.Enforced)
	assert.Empty(t, status.URI)
}

func TestTwoFactorService_Status_NeverWrites(t *testing.T) {
	records := &MockTwoFactorRepository{
		GetFunc: func(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
			return nil, models.ErrNotFound
		},
		SaveFunc: func(ctx context.Context, record *models.TwoFactorRecord) error {
			t.Error("status must not persist anything")
			return nil
		},
	}
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	for i := 0; i < 3; i++ {
		_, err := svc.Status(context.Background(), "acct-1")
		require.NoError(t, err)
	}
}

// ============================================================================
// VerifyCode Tests
// ============================================================================

func TestTwoFactorService_VerifyCode_Success(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	secret := enrollActive(t, svc, totp)

	// Confirmation consumed the current step; move one step forward, which
	// the drift window still accepts
	now := time.Now()
	next, err := totp.CodeAt(secret, now.Add(30*time.Second))
	require.NoError(t, err)

	err = svc.VerifyCode(context.Background(), "acct-1", next)

	require.NoError(t, err)

	record, err := records.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, totp.Step(now)+1, record.LastConsumedStep)
}

func TestTwoFactorService_VerifyCode_RejectsReplay(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	secret := enrollActive(t, svc, totp)

	next, err := totp.CodeAt(secret, time.Now().Add(30*time.Second))
	require.NoError(t, err)

	require.NoError(t, svc.VerifyCode(context.Background(), "acct-1", next))

	err = svc.VerifyCode(context.Background(), "acct-1", next)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestTwoFactorService_VerifyCode_WrongCode(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, totp := newTestService(records, &MockSecurityNotifier{})
	enrollActive(t, svc, totp)

	err := svc.VerifyCode(context.Background(), "acct-1", "000000")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestTwoFactorService_VerifyCode_NotActive(t *testing.T) {
	records := NewMemoryTwoFactorRepository()
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	// No record at all
	err := svc.VerifyCode(context.Background(), "acct-1", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Pending enrollment is not enough
	_, err = svc.BeginEnrollment(context.Background(), "acct-1")
	require.NoError(t, err)
	err = svc.VerifyCode(context.Background(), "acct-1", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTwoFactorService_VerifyCode_StorageErrorMapped(t *testing.T) {
	records := &MockTwoFactorRepository{
		GetFunc: func(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, _ := newTestService(records, &MockSecurityNotifier{})

	err := svc.VerifyCode(context.Background(), "acct-1", "123456")
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
