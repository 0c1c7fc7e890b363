package domain

import "time"

// Pair is the credential pair returned by login and refresh. The refresh token
// is the only copy of the opaque value; the store keeps its hash.
type Pair struct {
	PrincipalID      string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time // zero when the refresh token does not expire
	// TokenVersion is the principal version the refresh token was minted at.
	TokenVersion int64
}

// Lineage is an outstanding refresh token of a principal as seen by operators.
type Lineage struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	// Current is true when the token was minted at the principal's current
	// version and has not expired, i.e. it would rotate successfully.
	Current bool
}
