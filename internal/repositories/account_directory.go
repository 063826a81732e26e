package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/latchkey-auth/latchkey/internal/models"
)

// AccountDirectory reads accounts from the identity provider's store.
// It is strictly read-only here: registration, password changes, and
// deletion belong to the provider.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

type accountDirectoryImpl struct {
	db *pgxpool.Pool
}

// NewAccountDirectory creates a directory backed by the shared database
func NewAccountDirectory(db *pgxpool.Pool) AccountDirectory {
	return &accountDirectoryImpl{db: db}
}

// GetByID retrieves an account by its identifier
func (r *accountDirectoryImpl) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account := &models.Account{}

	query := `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}
