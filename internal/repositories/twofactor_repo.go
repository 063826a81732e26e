package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
)

// TwoFactorRepository persists per-account two-factor records.
// Save uses optimistic concurrency on the record version: when two
// writers race, exactly one Save succeeds and the loser gets ErrConflict.
type TwoFactorRepository interface {
	Get(ctx context.Context, accountID string) (*models.TwoFactorRecord, error)
	Save(ctx context.Context, record *models.TwoFactorRecord) error
	DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// twoFactorRepoImpl implements TwoFactorRepository on pgx. Secrets cross
// this boundary in plaintext and live encrypted in the row; the cipher
// carrying the injected key is the only component that sees ciphertext.
type twoFactorRepoImpl struct {
	db     *pgxpool.Pool
	cipher *auth.SecretCipher
}

// NewTwoFactorRepository creates a new two-factor record repository
func NewTwoFactorRepository(db *pgxpool.Pool, cipher *auth.SecretCipher) TwoFactorRepository {
	return &twoFactorRepoImpl{db: db, cipher: cipher}
}

// Get retrieves the record for an account, decrypting stored secrets
func (r *twoFactorRepoImpl) Get(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
	record := &models.TwoFactorRecord{}
	var confirmedCipher, pendingCipher []byte

	query := `
		SELECT account_id, confirmed_secret, pending_secret, enforced,
		       last_consumed_step, version, created_at, updated_at
		FROM two_factor_records
		WHERE account_id = $1
	`

	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&record.AccountID,
		&confirmedCipher,
		&pendingCipher,
		&record.Enforced,
		&record.LastConsumedStep,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get two-factor record: %w", err)
	}

	if record.ConfirmedSecret, err = r.decrypt(confirmedCipher); err != nil {
		return nil, err
	}
	if record.PendingSecret, err = r.decrypt(pendingCipher); err != nil {
		return nil, err
	}

	return record, nil
}

// Save inserts an unsaved record (version 0) or updates an existing one
// guarded by its version. On success the record's version is advanced to
// match the row.
func (r *twoFactorRepoImpl) Save(ctx context.Context, record *models.TwoFactorRecord) error {
	confirmedCipher, err := r.encrypt(record.ConfirmedSecret)
	if err != nil {
		return err
	}
	pendingCipher, err := r.encrypt(record.PendingSecret)
	if err != nil {
		return err
	}

	if record.Version == 0 {
		query := `
			INSERT INTO two_factor_records
				(account_id, confirmed_secret, pending_secret, enforced, last_consumed_step, version)
			VALUES ($1, $2, $3, $4, $5, 1)
			RETURNING created_at, updated_at
		`

		err := r.db.QueryRow(ctx, query,
			record.AccountID,
			confirmedCipher,
			pendingCipher,
			record.Enforced,
			record.LastConsumedStep,
		).Scan(&record.CreatedAt, &record.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case "23505": // another writer created the row first
					return models.ErrConflict
				case "23503": // account does not exist
					return models.ErrNotFound
				}
			}
			return fmt.Errorf("failed to insert two-factor record: %w", err)
		}

		record.Version = 1
		return nil
	}

	query := `
		UPDATE two_factor_records
		SET confirmed_secret = $1, pending_secret = $2, enforced = $3,
		    last_consumed_step = $4, version = version + 1, updated_at = NOW()
		WHERE account_id = $5 AND version = $6
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		confirmedCipher,
		pendingCipher,
		record.Enforced,
		record.LastConsumedStep,
		record.AccountID,
		record.Version,
	).Scan(&record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row changed under us; the caller reloads and retries
			return models.ErrConflict
		}
		return fmt.Errorf("failed to update two-factor record: %w", err)
	}

	record.Version++
	return nil
}

// DeleteStalePending clears pending secrets that sat unconfirmed past the
// TTL. The version advances so a concurrent confirm of a swept secret
// fails its compare-and-swap instead of activating dead state.
func (r *twoFactorRepoImpl) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		UPDATE two_factor_records
		SET pending_secret = NULL, version = version + 1, updated_at = NOW()
		WHERE pending_secret IS NOT NULL
		  AND enforced = FALSE
		  AND updated_at < $1
	`

	commandTag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale pending secrets: %w", err)
	}

	return commandTag.RowsAffected(), nil
}

func (r *twoFactorRepoImpl) encrypt(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}
	data, err := r.cipher.Encrypt([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return data, nil
}

func (r *twoFactorRepoImpl) decrypt(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	plain, err := r.cipher.Decrypt(data)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plain), nil
}
