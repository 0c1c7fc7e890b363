package domain

import "time"

// Audit actions recorded by the credential service.
const (
	ActionRegister               = "register"
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionRefresh                = "refresh"
	ActionRefreshRejected        = "refresh_rejected"
	ActionRefreshReuse           = "refresh_reuse"
	ActionLogout                 = "logout"
	ActionDeviceCredentialIssued = "device_credential_issued"
	ActionPrincipalDisabled      = "principal_disabled"
	ActionPrincipalEnabled       = "principal_enabled"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	IP          string    `json:"ip"`
	Metadata    string    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
