package repository

import (
	"context"
	"errors"

	"bottle-monitor/backend/internal/refreshtoken/domain"
)

// ErrDuplicate is returned by Create when a row with the same id or token hash exists.
var ErrDuplicate = errors.New("refresh token already exists")

// Repository defines persistence for issued refresh tokens. Rows are never updated.
type Repository interface {
	Create(ctx context.Context, t *domain.IssuedRefreshToken) error
	// GetByHash returns the row whose TokenHash equals hash exactly, or nil if none.
	GetByHash(ctx context.Context, hash string) (*domain.IssuedRefreshToken, error)
	// ListByPrincipal returns the principal's rows, newest first.
	ListByPrincipal(ctx context.Context, principalID string) ([]*domain.IssuedRefreshToken, error)
}
