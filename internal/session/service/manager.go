package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	principaldomain "bottle-monitor/backend/internal/principal/domain"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	refreshdomain "bottle-monitor/backend/internal/refreshtoken/domain"
	"bottle-monitor/backend/internal/security"
	"bottle-monitor/backend/internal/session/domain"
)

// Rotation and revocation failures. Callers outside this package should not
// reveal which one occurred.
var (
	ErrRefreshNotFound   = errors.New("refresh token not found")
	ErrRefreshExpired    = errors.New("refresh token expired")
	ErrRefreshStale      = errors.New("refresh token stale")
	ErrPrincipalDisabled = errors.New("principal disabled")
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrStoreUnavailable wraps store timeouts and connection failures. It is never
	// reported as not-found.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

const defaultStoreTimeout = 3 * time.Second

// RejectionError is returned by Rotate when the presented token belongs to a
// known principal but cannot be rotated. It unwraps to the specific sentinel.
type RejectionError struct {
	Err         error
	PrincipalID string
	// Revoked is set when the rejection also advanced the principal's version.
	Revoked bool
}

func (e *RejectionError) Error() string { return e.Err.Error() }

func (e *RejectionError) Unwrap() error { return e.Err }

// PrincipalRepo is the minimal principal repository needed by the manager.
type PrincipalRepo interface {
	GetByID(ctx context.Context, id string) (*principaldomain.Principal, error)
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error)
}

// RefreshTokenRepo is the minimal refresh token repository needed by the manager.
type RefreshTokenRepo interface {
	Create(ctx context.Context, t *refreshdomain.IssuedRefreshToken) error
	GetByHash(ctx context.Context, hash string) (*refreshdomain.IssuedRefreshToken, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]*refreshdomain.IssuedRefreshToken, error)
}

// Options configures a Manager.
type Options struct {
	// RefreshTTL is the refresh token lifetime; zero issues non-expiring tokens.
	RefreshTTL time.Duration
	// StoreTimeout bounds every store call. Defaults to 3s.
	StoreTimeout time.Duration
	// RevokeOnReuse bumps the principal version when a stale but known refresh
	// token is presented, ending every lineage of that principal.
	RevokeOnReuse bool
	Logger        *zap.Logger
}

// Manager issues, rotates and revokes session credentials. It holds no
// per-request state; the principal's token version in the store is the only
// contended value.
type Manager struct {
	principals    PrincipalRepo
	refreshTokens RefreshTokenRepo
	tokens        *security.TokenProvider
	refreshTTL    time.Duration
	storeTimeout  time.Duration
	revokeOnReuse bool
	log           *zap.Logger
	now           func() time.Time
}

// NewManager returns a Manager with the given dependencies.
func NewManager(principals PrincipalRepo, refreshTokens RefreshTokenRepo, tokens *security.TokenProvider, opts Options) *Manager {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		principals:    principals,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		refreshTTL:    opts.RefreshTTL,
		storeTimeout:  opts.StoreTimeout,
		revokeOnReuse: opts.RevokeOnReuse,
		log:           opts.Logger,
		now:           time.Now,
	}
}

// SetClock replaces the time source for refresh expiry. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Issue mints an access token and a new refresh lineage for p at p's current
// token version. Existing lineages are left untouched.
func (m *Manager) Issue(ctx context.Context, p *principaldomain.Principal) (*domain.Pair, error) {
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	if p.Disabled {
		return nil, ErrPrincipalDisabled
	}
	access, accessExp, err := m.tokens.IssueAccess(p.ID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	plain, hash, err := security.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := m.now().UTC()
	row := &refreshdomain.IssuedRefreshToken{
		ID:                  uuid.New().String(),
		PrincipalID:         p.ID,
		TokenHash:           hash,
		TokenVersionAtIssue: p.TokenVersion,
		CreatedAt:           now,
	}
	if m.refreshTTL > 0 {
		row.ExpiresAt = now.Add(m.refreshTTL)
	}
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	if err := m.refreshTokens.Create(sctx, row); err != nil {
		return nil, storeError(err)
	}
	return &domain.Pair{
		PrincipalID:      p.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     plain,
		RefreshExpiresAt: row.ExpiresAt,
		TokenVersion:     p.TokenVersion,
	}, nil
}

// Rotate exchanges a current refresh token for a new pair. The principal's
// version is advanced with a single conditional update, so of several
// concurrent rotations of one token exactly one succeeds and the rest fail
// with ErrRefreshStale. The presented row stays in the store, permanently stale.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*domain.Pair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshNotFound
	}
	row, err := m.lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if row.Expired(m.now()) {
		return nil, &RejectionError{Err: ErrRefreshExpired, PrincipalID: row.PrincipalID}
	}
	p, err := m.getPrincipal(ctx, row.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrRefreshNotFound
	}
	if p.Disabled {
		return nil, &RejectionError{Err: ErrPrincipalDisabled, PrincipalID: p.ID}
	}
	if !row.CurrentFor(p.TokenVersion) {
		m.log.Warn("stale refresh token presented",
			zap.String("principal_id", p.ID),
			zap.String("refresh_id", row.ID),
			zap.Int64("token_version_at_issue", row.TokenVersionAtIssue),
			zap.Int64("token_version", p.TokenVersion),
		)
		rej := &RejectionError{Err: ErrRefreshStale, PrincipalID: p.ID}
		if m.revokeOnReuse {
			if _, err := m.Revoke(ctx, p.ID); err != nil {
				m.log.Error("revoke on refresh reuse failed", zap.String("principal_id", p.ID), zap.Error(err))
			} else {
				rej.Revoked = true
			}
		}
		return nil, rej
	}

	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	next, err := m.principals.CompareAndBumpTokenVersion(sctx, p.ID, p.TokenVersion)
	cancel()
	if errors.Is(err, principalrepo.ErrVersionConflict) {
		return nil, &RejectionError{Err: ErrRefreshStale, PrincipalID: p.ID}
	}
	if err != nil {
		return nil, storeError(err)
	}
	p.TokenVersion = next
	return m.Issue(ctx, p)
}

// Revoke advances the principal's token version, invalidating every refresh
// token issued before the call. Each call strictly increases the version.
func (m *Manager) Revoke(ctx context.Context, principalID string) (int64, error) {
	if principalID == "" {
		return 0, ErrPrincipalNotFound
	}
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	v, err := m.principals.BumpTokenVersion(sctx, principalID)
	if errors.Is(err, principalrepo.ErrNotFound) {
		return 0, ErrPrincipalNotFound
	}
	if err != nil {
		return 0, storeError(err)
	}
	return v, nil
}

// RevokeByRefreshToken revokes every lineage of the principal owning
// refreshToken. The token need not be current.
func (m *Manager) RevokeByRefreshToken(ctx context.Context, refreshToken string) (principalID string, version int64, err error) {
	if refreshToken == "" {
		return "", 0, ErrRefreshNotFound
	}
	row, err := m.lookup(ctx, refreshToken)
	if err != nil {
		return "", 0, err
	}
	v, err := m.Revoke(ctx, row.PrincipalID)
	if err != nil {
		return row.PrincipalID, 0, err
	}
	return row.PrincipalID, v, nil
}

// Lineages lists the principal's refresh tokens, newest first, marking the ones
// that would still rotate.
func (m *Manager) Lineages(ctx context.Context, principalID string) ([]domain.Lineage, error) {
	p, err := m.getPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	rows, err := m.refreshTokens.ListByPrincipal(sctx, principalID)
	if err != nil {
		return nil, storeError(err)
	}
	now := m.now()
	out := make([]domain.Lineage, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Lineage{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
			Current:   !p.Disabled && r.CurrentFor(p.TokenVersion) && !r.Expired(now),
		})
	}
	return out, nil
}

func (m *Manager) lookup(ctx context.Context, refreshToken string) (*refreshdomain.IssuedRefreshToken, error) {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	row, err := m.refreshTokens.GetByHash(sctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		return nil, storeError(err)
	}
	if row == nil {
		return nil, ErrRefreshNotFound
	}
	return row, nil
}

func (m *Manager) getPrincipal(ctx context.Context, id string) (*principaldomain.Principal, error) {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	p, err := m.principals.GetByID(sctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
