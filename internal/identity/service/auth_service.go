// Package service exposes the credential lifecycle operations to transports
// and to the operator CLI. It resolves principals, verifies secrets and
// delegates token issuance, rotation and revocation to the session manager.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bottle-monitor/backend/internal/audit"
	auditdomain "bottle-monitor/backend/internal/audit/domain"
	"bottle-monitor/backend/internal/device"
	devicedomain "bottle-monitor/backend/internal/device/domain"
	"bottle-monitor/backend/internal/federated"
	principaldomain "bottle-monitor/backend/internal/principal/domain"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	"bottle-monitor/backend/internal/security"
	sessiondomain "bottle-monitor/backend/internal/session/domain"
	sessionservice "bottle-monitor/backend/internal/session/service"
	"bottle-monitor/backend/internal/telemetry"
)

const (
	defaultStoreTimeout = 3 * time.Second

	methodPassword  = "password"
	methodFederated = "federated"
)

// PrincipalRepo is the minimal principal repository needed by the auth service.
type PrincipalRepo interface {
	GetByID(ctx context.Context, id string) (*principaldomain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*principaldomain.Principal, error)
	GetByFederatedID(ctx context.Context, federatedID string) (*principaldomain.Principal, error)
	Create(ctx context.Context, p *principaldomain.Principal) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

// Metrics records auth outcomes. *telemetry.AuthMetrics implements it.
type Metrics interface {
	RecordLogin(ctx context.Context, method, outcome string)
	RecordRefresh(ctx context.Context, outcome string)
	RecordRevoke(ctx context.Context)
	RecordDeviceCredential(ctx context.Context)
}

// Deps are the collaborators of an AuthService. Federated, States, Audit,
// Metrics and Logger may be nil. Without States the callback state is not
// checked server-side and the client must compare it.
type Deps struct {
	Principals   PrincipalRepo
	Sessions     *sessionservice.Manager
	Devices      *device.Issuer
	Tokens       *security.TokenProvider
	Hasher       *security.Hasher
	Federated    federated.Provider
	States       federated.StateStore
	Audit        audit.AuditLogger
	Metrics      Metrics
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// AuthService implements register, password and federated login, refresh,
// logout, device credential issuance and token verification.
type AuthService struct {
	principals   PrincipalRepo
	sessions     *sessionservice.Manager
	devices      *device.Issuer
	tokens       *security.TokenProvider
	hasher       *security.Hasher
	federated    federated.Provider
	states       federated.StateStore
	audit        audit.AuditLogger
	metrics      Metrics
	log          *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = (*telemetry.AuthMetrics)(nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = defaultStoreTimeout
	}
	return &AuthService{
		principals:   d.Principals,
		sessions:     d.Sessions,
		devices:      d.Devices,
		tokens:       d.Tokens,
		hasher:       d.Hasher,
		federated:    d.Federated,
		states:       d.States,
		audit:        d.Audit,
		metrics:      d.Metrics,
		log:          d.Logger,
		storeTimeout: d.StoreTimeout,
		now:          time.Now,
	}
}

// Register creates a password principal. The email is stored as given (trimmed)
// and matched case-insensitively.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*principaldomain.Principal, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &principaldomain.Principal{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.create(ctx, p); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, p.ID, auditdomain.ActionRegister, "principal", "")
	return p, nil
}

// Login verifies email and password and issues a new session pair. Unknown
// emails, wrong passwords, federated-only and disabled principals all yield
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*sessiondomain.Pair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.loginFailed(ctx, "", methodPassword)
		return nil, ErrInvalidCredentials
	}
	p, err := s.getByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeError)
		return nil, err
	}
	if p == nil || !p.HasPassword() {
		s.hasher.VerifyDummy(password)
		s.loginFailed(ctx, "", methodPassword)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(p.PasswordHash, password) || p.Disabled {
		s.loginFailed(ctx, p.ID, methodPassword)
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, p, methodPassword)
}

// FederatedLoginComplete resolves the principal bound to subject, creating one
// on first login, and issues a session pair. An email already held by a
// different principal yields ErrEmailAlreadyRegistered.
func (s *AuthService) FederatedLoginComplete(ctx context.Context, subject, email, displayName string) (*sessiondomain.Pair, error) {
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(email)
	if subject == "" {
		return nil, &ValidationError{Field: "subject", Reason: "is required"}
	}
	p, err := s.getByFederatedID(ctx, subject)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if p, err = s.createFederated(ctx, subject, email, displayName); err != nil {
			return nil, err
		}
	}
	if p.Disabled {
		s.loginFailed(ctx, p.ID, methodFederated)
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, p, methodFederated)
}

// FederatedLoginURL returns the provider consent URL and the state it carries.
// An empty state is replaced with a random one. The state is remembered for
// federated.DefaultStateTTL when a state store is configured.
func (s *AuthService) FederatedLoginURL(ctx context.Context, state string) (url, usedState string, err error) {
	if s.federated == nil {
		return "", "", ErrFederatedNotConfigured
	}
	if state = strings.TrimSpace(state); state == "" {
		state = uuid.New().String()
	}
	if len(state) > federated.MaxStateLen {
		return "", "", &ValidationError{Field: "state", Reason: fmt.Sprintf("must be at most %d bytes", federated.MaxStateLen)}
	}
	if s.states != nil {
		s.states.Put(ctx, state, s.now().Add(federated.DefaultStateTTL))
	}
	return s.federated.AuthCodeURL(state), state, nil
}

// FederatedLoginCallback checks state, exchanges an authorization code with
// the provider and completes the federated login.
func (s *AuthService) FederatedLoginCallback(ctx context.Context, code, state string) (*sessiondomain.Pair, error) {
	if s.federated == nil {
		return nil, ErrFederatedNotConfigured
	}
	if s.states != nil && !s.states.Consume(ctx, strings.TrimSpace(state)) {
		s.loginFailed(ctx, "", methodFederated)
		return nil, ErrFederatedState
	}
	ident, err := s.federated.Exchange(ctx, code)
	if err != nil {
		s.log.Warn("federated exchange failed", zap.Error(err))
		s.loginFailed(ctx, "", methodFederated)
		return nil, err
	}
	return s.FederatedLoginComplete(ctx, ident.Subject, ident.Email, ident.DisplayName)
}

// Refresh rotates refreshToken. Every rejection is reported as
// ErrInvalidOrStaleToken wrapping the specific cause; store failures are
// returned as ErrStoreUnavailable.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*sessiondomain.Pair, error) {
	pair, err := s.sessions.Rotate(ctx, refreshToken)
	if err == nil {
		s.metrics.RecordRefresh(ctx, telemetry.OutcomeSuccess)
		s.audit.LogEvent(ctx, pair.PrincipalID, auditdomain.ActionRefresh, "session", "")
		return pair, nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		s.metrics.RecordRefresh(ctx, telemetry.OutcomeError)
		return nil, err
	}
	var principalID string
	var rej *sessionservice.RejectionError
	if errors.As(err, &rej) {
		principalID = rej.PrincipalID
	}
	if rej != nil && rej.Revoked {
		s.metrics.RecordRefresh(ctx, telemetry.OutcomeReuse)
		s.audit.LogEvent(ctx, principalID, auditdomain.ActionRefreshReuse, "session", "")
	} else {
		s.metrics.RecordRefresh(ctx, telemetry.OutcomeRejected)
		s.audit.LogEvent(ctx, principalID, auditdomain.ActionRefreshRejected, "session", "")
	}
	return nil, fmt.Errorf("%w: %w", ErrInvalidOrStaleToken, err)
}

// Logout revokes every session of the principal owning refreshToken. The token
// need not be current. An unknown token yields ErrNotFound.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	principalID, _, err := s.sessions.RevokeByRefreshToken(ctx, refreshToken)
	if err != nil {
		return s.revokeError(err)
	}
	s.revoked(ctx, principalID)
	return nil
}

// LogoutPrincipal revokes every session of principalID.
func (s *AuthService) LogoutPrincipal(ctx context.Context, principalID string) error {
	if _, err := s.sessions.Revoke(ctx, principalID); err != nil {
		return s.revokeError(err)
	}
	s.revoked(ctx, principalID)
	return nil
}

// IssueDeviceCredential mints a non-expiring device credential. issuedBy is the
// principal requesting it and is recorded in the audit trail only.
func (s *AuthService) IssueDeviceCredential(ctx context.Context, issuedBy, deviceID, resourceID string) (string, error) {
	token, err := s.devices.Issue(deviceID, resourceID)
	if err != nil {
		return "", err
	}
	s.metrics.RecordDeviceCredential(ctx)
	s.audit.LogEvent(ctx, issuedBy, auditdomain.ActionDeviceCredentialIssued,
		"device:"+strings.TrimSpace(deviceID), "resource="+strings.TrimSpace(resourceID))
	return token, nil
}

// VerifyAccess returns the principal id of a valid access token, or
// ErrTokenExpired / ErrTokenMalformed. It does not touch the store.
func (s *AuthService) VerifyAccess(token string) (string, error) {
	claims, err := s.tokens.VerifySession(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	return claims.PrincipalID, nil
}

// VerifyDevice returns the device and resource ids bound by a device credential.
func (s *AuthService) VerifyDevice(token string) (devicedomain.Identity, error) {
	return s.devices.Verify(strings.TrimSpace(token))
}

// WhoAmI returns the principal with the given id.
func (s *AuthService) WhoAmI(ctx context.Context, principalID string) (*principaldomain.Principal, error) {
	p, err := s.getByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// SetDisabled disables or re-enables a principal. A disabled principal can
// neither log in nor rotate; outstanding access tokens remain valid until exp.
func (s *AuthService) SetDisabled(ctx context.Context, principalID string, disabled bool) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	err := s.principals.SetDisabled(sctx, principalID, disabled)
	if errors.Is(err, principalrepo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeError(err)
	}
	action := auditdomain.ActionPrincipalEnabled
	if disabled {
		action = auditdomain.ActionPrincipalDisabled
	}
	s.audit.LogEvent(ctx, principalID, action, "principal", "")
	return nil
}

// Sessions lists the refresh lineages of principalID, newest first.
func (s *AuthService) Sessions(ctx context.Context, principalID string) ([]sessiondomain.Lineage, error) {
	lineages, err := s.sessions.Lineages(ctx, principalID)
	if errors.Is(err, sessionservice.ErrPrincipalNotFound) {
		return nil, ErrNotFound
	}
	return lineages, err
}

func (s *AuthService) issue(ctx context.Context, p *principaldomain.Principal, method string) (*sessiondomain.Pair, error) {
	pair, err := s.sessions.Issue(ctx, p)
	if errors.Is(err, sessionservice.ErrPrincipalDisabled) {
		s.loginFailed(ctx, p.ID, method)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.RecordLogin(ctx, method, telemetry.OutcomeError)
		return nil, err
	}
	s.metrics.RecordLogin(ctx, method, telemetry.OutcomeSuccess)
	s.audit.LogEvent(ctx, p.ID, auditdomain.ActionLoginSuccess, "session", method)
	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, principalID, method string) {
	s.metrics.RecordLogin(ctx, method, telemetry.OutcomeRejected)
	s.audit.LogEvent(ctx, principalID, auditdomain.ActionLoginFailure, "session", method)
}

func (s *AuthService) revoked(ctx context.Context, principalID string) {
	s.metrics.RecordRevoke(ctx)
	s.audit.LogEvent(ctx, principalID, auditdomain.ActionLogout, "session", "")
}

func (s *AuthService) revokeError(err error) error {
	switch {
	case errors.Is(err, sessionservice.ErrRefreshNotFound), errors.Is(err, sessionservice.ErrPrincipalNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func (s *AuthService) createFederated(ctx context.Context, subject, email, displayName string) (*principaldomain.Principal, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	existing, err := s.getByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	now := s.now().UTC()
	p := &principaldomain.Principal{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		FederatedID: subject,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.create(ctx, p)
	if errors.Is(err, principalrepo.ErrFederatedIDTaken) {
		// A concurrent first login for the same subject won the insert.
		winner, gerr := s.getByFederatedID(ctx, subject)
		if gerr != nil {
			return nil, gerr
		}
		if winner != nil {
			return winner, nil
		}
	}
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, p.ID, auditdomain.ActionRegister, "principal", methodFederated)
	return p, nil
}

func (s *AuthService) create(ctx context.Context, p *principaldomain.Principal) error {
	if err := p.Validate(); err != nil {
		return &ValidationError{Field: "principal", Reason: err.Error()}
	}
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	err := s.principals.Create(sctx, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, principalrepo.ErrEmailTaken):
		return ErrEmailAlreadyRegistered
	case errors.Is(err, principalrepo.ErrFederatedIDTaken), errors.Is(err, principalrepo.ErrIDTaken):
		return err
	default:
		return storeError(err)
	}
}

func (s *AuthService) getByID(ctx context.Context, id string) (*principaldomain.Principal, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	p, err := s.principals.GetByID(sctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

func (s *AuthService) getByEmail(ctx context.Context, email string) (*principaldomain.Principal, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	p, err := s.principals.GetByEmail(sctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

func (s *AuthService) getByFederatedID(ctx context.Context, subject string) (*principaldomain.Principal, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	p, err := s.principals.GetByFederatedID(sctx, subject)
	if err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "invalid format"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return &ValidationError{Field: "password", Reason: "must be at least 12 characters"}
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return &ValidationError{Field: "password", Reason: "must contain at least one uppercase letter"}
	case !hasLower:
		return &ValidationError{Field: "password", Reason: "must contain at least one lowercase letter"}
	case !hasNumber:
		return &ValidationError{Field: "password", Reason: "must contain at least one number"}
	case !hasSymbol:
		return &ValidationError{Field: "password", Reason: "must contain at least one symbol"}
	}
	return nil
}
