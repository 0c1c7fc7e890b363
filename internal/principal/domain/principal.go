package domain

import (
	"errors"
	"strings"
	"time"
)

// Principal is a user account that can hold sessions.
type Principal struct {
	ID           string
	Email        string // case-preserved; uniqueness is on EmailKey(Email)
	DisplayName  string
	PasswordHash string // empty for federated-only accounts
	FederatedID  string // empty for password-only accounts
	Disabled     bool
	// TokenVersion starts at 0 and only grows. Refresh tokens minted at an older
	// version are stale.
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmailKey returns the normalized form of email used for uniqueness and lookup.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the principal for persistence. Returns an error describing the first validation failure.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if EmailKey(p.Email) == "" {
		return errors.New("email is required")
	}
	if p.PasswordHash == "" && p.FederatedID == "" {
		return errors.New("password hash or federated id is required")
	}
	if p.TokenVersion < 0 {
		return errors.New("token version must not be negative")
	}
	return nil
}

// HasPassword reports whether the principal can log in with a password.
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != ""
}
