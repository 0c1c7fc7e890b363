package domain

import (
	"errors"
	"time"
)

// IssuedRefreshToken is one outstanding refresh lineage. Rows are write-once; a
// row goes stale when the principal's token version moves past
// TokenVersionAtIssue.
type IssuedRefreshToken struct {
	ID                  string
	PrincipalID         string
	TokenHash           string // SHA-256 hex of the opaque token; the token itself is never stored
	TokenVersionAtIssue int64
	CreatedAt           time.Time
	ExpiresAt           time.Time // zero means the token does not expire
}

// Expired reports whether the token has an expiry at or before now.
func (t *IssuedRefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// CurrentFor reports whether the token was minted at the given principal version.
func (t *IssuedRefreshToken) CurrentFor(tokenVersion int64) bool {
	return t.TokenVersionAtIssue == tokenVersion
}

// Validate validates the token for persistence.
func (t *IssuedRefreshToken) Validate() error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.PrincipalID == "" {
		return errors.New("principal id is required")
	}
	if t.TokenHash == "" {
		return errors.New("token hash is required")
	}
	if t.CreatedAt.IsZero() {
		return errors.New("created at is required")
	}
	if t.TokenVersionAtIssue < 0 {
		return errors.New("token version must not be negative")
	}
	return nil
}
