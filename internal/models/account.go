package models

import (
	"time"
)

// Account is the read model of the identity provider's account row.
// Latchkey only ever reads these; the provider owns registration,
// password changes, and deletion.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
