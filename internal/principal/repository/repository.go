package repository

import (
	"context"
	"errors"

	"bottle-monitor/backend/internal/principal/domain"
)

var (
	// ErrEmailTaken is returned by Create when another principal holds the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrFederatedIDTaken is returned by Create when another principal holds the federated id.
	ErrFederatedIDTaken = errors.New("federated identity already linked")
	// ErrIDTaken is returned by Create when the principal id already exists.
	ErrIDTaken = errors.New("principal id already exists")
	// ErrNotFound is returned by BumpTokenVersion and SetDisabled when the principal does not exist.
	ErrNotFound = errors.New("principal not found")
	// ErrVersionConflict is returned by CompareAndBumpTokenVersion when the stored
	// version differs from the expected one or the principal does not exist.
	ErrVersionConflict = errors.New("token version conflict")
)

// Repository defines persistence for principals. Lookups return (nil, nil) when
// no principal matches; errors are returned only for store failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	GetByFederatedID(ctx context.Context, federatedID string) (*domain.Principal, error)
	// Create inserts p. It fails with ErrEmailTaken, ErrFederatedIDTaken or ErrIDTaken
	// on a uniqueness violation.
	Create(ctx context.Context, p *domain.Principal) error
	// BumpTokenVersion atomically adds one to the principal's token version and
	// returns the new value.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	// CompareAndBumpTokenVersion atomically sets the token version to expected+1
	// only if it currently equals expected, and returns the new value.
	CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
