package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
	"github.com/latchkey-auth/latchkey/internal/repositories"
)

// TwoFactorService orchestrates the enrollment lifecycle. Decisions live
// in the record's transition methods; this layer loads state, runs the
// verification gate, persists, and notifies.
type TwoFactorService struct {
	records  repositories.TwoFactorRepository
	accounts repositories.AccountDirectory
	totp     *auth.TOTPManager
	gate     *auth.Gate
	notifier SecurityNotifier
	logger   *slog.Logger
}

// NewTwoFactorService creates a new two-factor service
func NewTwoFactorService(
	records repositories.TwoFactorRepository,
	accounts repositories.AccountDirectory,
	totp *auth.TOTPManager,
	gate *auth.Gate,
	notifier SecurityNotifier,
	logger *slog.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		records:  records,
		accounts: accounts,
		totp:     totp,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
	}
}

// BeginEnrollment stages a fresh secret for the account and returns it with
// its provisioning URI. This is an explicit command: repeating it while
// pending rotates to a new secret, and the previous one is dead immediately.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID string) (*models.EnrollmentSetup, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	record, err := s.getOrNewRecord(ctx, accountID)
	if err != nil {
		return nil, err
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate shared secret", slog.Any("error", err))
		return nil, err
	}

	if err := record.Rotate(secret); err != nil {
		return nil, err
	}

	if err := s.saveRecord(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("two-factor enrollment started", slog.String("account_id", accountID))

	return &models.EnrollmentSetup{
		Secret: secret,
		URI:    s.totp.ProvisioningURI(account.Email, secret),
	}, nil
}

// ConfirmEnrollment verifies the password and a code from the pending
// secret, then activates enforcement. The code's step is consumed so it
// cannot be replayed at the first verification after activation.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, password, code string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	record, err := s.records.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Nothing staged; enrollment was never begun
			return models.ErrInvalidState
		}
		s.logger.Error("failed to load two-factor record", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if record.State() != models.TwoFactorPending {
		return models.ErrInvalidState
	}

	step, err := s.gate.VerifyPasswordAndCode(
		account.PasswordHash, password, code,
		record.PendingSecret, record.LastConsumedStep, time.Now(),
	)
	if err != nil {
		if errors.Is(err, models.ErrPasswordInvalid) || errors.Is(err, models.ErrCodeInvalid) {
			return err
		}
		s.logger.Error("confirmation gate failed", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := record.Activate(step); err != nil {
		return err
	}

	if err := s.saveRecord(ctx, record); err != nil {
		return err
	}

	s.logger.Info("two-factor enrollment confirmed", slog.String("account_id", accountID))

	if err := s.notifier.TwoFactorEnabled(ctx, account); err != nil {
		s.logger.Error("failed to send enable notification",
			slog.String("account_id", accountID),
			slog.Any("error", err))
	}

	return nil
}

// Disable verifies the password and stops enforcement, discarding all
// secrets. Disabling when not active fails with ErrInvalidState so a
// repeated submit surfaces cleanly.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	record, err := s.records.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidState
		}
		s.logger.Error("failed to load two-factor record", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if record.State() != models.TwoFactorActive {
		return models.ErrInvalidState
	}

	if err := s.gate.VerifyPassword(account.PasswordHash, password); err != nil {
		return err
	}

	if err := record.Deactivate(); err != nil {
		return err
	}

	if err := s.saveRecord(ctx, record); err != nil {
		return err
	}

	s.logger.Info("two-factor disabled", slog.String("account_id", accountID))

	if err := s.notifier.TwoFactorDisabled(ctx, account); err != nil {
		s.logger.Error("failed to send disable notification",
			slog.String("account_id", accountID),
			slog.Any("error", err))
	}

	return nil
}

// Status reports the current state. It is strictly read-only: it never
// generates secrets and never writes.
func (s *TwoFactorService) Status(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	record, err := s.records.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.TwoFactorStatus{State: models.TwoFactorDisabled}, nil
		}
		s.logger.Error("failed to load two-factor record", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	status := &models.TwoFactorStatus{
		State:    record.State(),
		Enforced: record.Enforced,
	}
	if record.State() == models.TwoFactorPending {
		status.URI = s.totp.ProvisioningURI(account.Email, record.PendingSecret)
	}

	return status, nil
}

// VerifyCode checks a code against the active secret for step-up
// verification of an authenticated session, consuming the matched step so
// the same code cannot be accepted twice.
func (s *TwoFactorService) VerifyCode(ctx context.Context, accountID, code string) error {
	record, err := s.records.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidState
		}
		s.logger.Error("failed to load two-factor record", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if record.State() != models.TwoFactorActive {
		return models.ErrInvalidState
	}

	step, err := s.gate.VerifyCode(record.ConfirmedSecret, code, record.LastConsumedStep, time.Now())
	if err != nil {
		if errors.Is(err, models.ErrCodeInvalid) {
			return err
		}
		s.logger.Error("verification gate failed", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := record.Consume(step); err != nil {
		return err
	}

	return s.saveRecord(ctx, record)
}

func (s *TwoFactorService) getAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

func (s *TwoFactorService) getOrNewRecord(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
	record, err := s.records.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewTwoFactorRecord(accountID), nil
		}
		s.logger.Error("failed to load two-factor record", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return record, nil
}

func (s *TwoFactorService) saveRecord(ctx context.Context, record *models.TwoFactorRecord) error {
	if err := s.records.Save(ctx, record); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrConflict
		}
		s.logger.Error("failed to save two-factor record",
			slog.String("account_id", record.AccountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
