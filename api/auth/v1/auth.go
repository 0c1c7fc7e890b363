package authv1

// RegisterRequest creates a password principal.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterResponse describes the created principal.
type RegisterResponse struct {
	PrincipalID string `json:"principal_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// LoginRequest authenticates with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a session pair. Expiry times are Unix seconds;
// RefreshExpiresAt is 0 for a non-expiring refresh token.
type AuthResponse struct {
	PrincipalID      string `json:"principal_id"`
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt int64  `json:"refresh_expires_at,omitempty"`
	TokenType        string `json:"token_type"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest ends every session of the caller. When RefreshToken is empty the
// principal is taken from the Bearer access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutResponse struct{}

// FederatedLoginURLRequest asks for the provider consent URL.
type FederatedLoginURLRequest struct {
	State string `json:"state,omitempty"`
}

type FederatedLoginURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// FederatedLoginCallbackRequest completes a federated login with the
// authorization code returned by the provider.
type FederatedLoginCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// IssueDeviceCredentialRequest binds a device to a resource.
type IssueDeviceCredentialRequest struct {
	DeviceID   string `json:"device_id"`
	ResourceID string `json:"resource_id"`
}

type IssueDeviceCredentialResponse struct {
	DeviceCredential string `json:"device_credential"`
}

type WhoAmIRequest struct{}

type WhoAmIResponse struct {
	PrincipalID  string `json:"principal_id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	Federated    bool   `json:"federated"`
	TokenVersion int64  `json:"token_version"`
}

type IdentifyRequest struct{}

// IdentifyResponse returns the identities bound by the caller's device credential.
type IdentifyResponse struct {
	DeviceID   string `json:"device_id"`
	ResourceID string `json:"resource_id"`
}
