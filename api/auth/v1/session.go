package authv1

type ListSessionsRequest struct{}

// Session is one refresh token lineage of the caller. Times are Unix seconds;
// ExpiresAt is 0 for a non-expiring lineage.
type Session struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Current   bool   `json:"current"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type RevokeAllSessionsRequest struct{}

type RevokeAllSessionsResponse struct{}
