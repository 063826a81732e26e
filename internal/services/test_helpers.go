package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
)

// MockTwoFactorRepository implements TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	GetFunc                func(ctx context.Context, accountID string) (*models.TwoFactorRecord, error)
	SaveFunc               func(ctx context.Context, record *models.TwoFactorRecord) error
	DeleteStalePendingFunc func(ctx context.Context, olderThan time.Duration) (int64, error)
}

func (m *MockTwoFactorRepository) Get(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorRepository) Save(ctx context.Context, record *models.TwoFactorRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, record)
	}
	return nil
}

func (m *MockTwoFactorRepository) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.DeleteStalePendingFunc != nil {
		return m.DeleteStalePendingFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockAccountDirectory implements AccountDirectory for testing
type MockAccountDirectory struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.Account, error)
}

func (m *MockAccountDirectory) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockSecurityNotifier implements SecurityNotifier for testing
type MockSecurityNotifier struct {
	TwoFactorEnabledFunc  func(ctx context.Context, account *models.Account) error
	TwoFactorDisabledFunc func(ctx context.Context, account *models.Account) error
}

func (m *MockSecurityNotifier) TwoFactorEnabled(ctx context.Context, account *models.Account) error {
	if m.TwoFactorEnabledFunc != nil {
		return m.TwoFactorEnabledFunc(ctx, account)
	}
	return nil
}

func (m *MockSecurityNotifier) TwoFactorDisabled(ctx context.Context, account *models.Account) error {
	if m.TwoFactorDisabledFunc != nil {
		return m.TwoFactorDisabledFunc(ctx, account)
	}
	return nil
}

// FakePasswordVerifier accepts a single password without bcrypt cost
type FakePasswordVerifier struct {
	Password string
}

func (f *FakePasswordVerifier) Compare(hash, password string) error {
	if password == f.Password {
		return nil
	}
	return fmt.Errorf("password mismatch")
}

// NewTestGate builds a gate with no timing padding for fast tests
func NewTestGate(totp *auth.TOTPManager, password string) *auth.Gate {
	return auth.NewGate(&FakePasswordVerifier{Password: password}, totp, auth.NewTimingDelay(auth.TimingConfig{}))
}

// MemoryTwoFactorRepository is an in-memory TwoFactorRepository with the
// same version semantics as the database implementation. It backs
// end-to-end service tests.
type MemoryTwoFactorRepository struct {
	mu      sync.Mutex
	records map[string]models.TwoFactorRecord
}

func NewMemoryTwoFactorRepository() *MemoryTwoFactorRepository {
	return &MemoryTwoFactorRepository{records: make(map[string]models.TwoFactorRecord)}
}

func (m *MemoryTwoFactorRepository) Get(ctx context.Context, accountID string) (*models.TwoFactorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

func (m *MemoryTwoFactorRepository) Save(ctx context.Context, record *models.TwoFactorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[record.AccountID]
	if record.Version == 0 {
		if ok {
			return models.ErrConflict
		}
		record.Version = 1
		record.UpdatedAt = time.Now().UTC()
		m.records[record.AccountID] = *record
		return nil
	}

	if !ok || existing.Version != record.Version {
		return models.ErrConflict
	}
	record.Version++
	record.UpdatedAt = time.Now().UTC()
	m.records[record.AccountID] = *record
	return nil
}

func (m *MemoryTwoFactorRepository) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var swept int64
	for id, rec := range m.records {
		if rec.PendingSecret != "" && !rec.Enforced && rec.UpdatedAt.Before(cutoff) {
			rec.PendingSecret = ""
			rec.Version++
			rec.UpdatedAt = time.Now().UTC()
			m.records[id] = rec
			swept++
		}
	}
	return swept, nil
}
