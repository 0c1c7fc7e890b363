package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"bottle-monitor/backend/internal/refreshtoken/domain"
)

const refreshColumns = `id, principal_id, token_hash, token_version_at_issue, created_at, expires_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the refresh token row. ExpiresAt zero is stored as NULL.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.IssuedRefreshToken) error {
	if err := t.Validate(); err != nil {
		return err
	}
	expiresAt := sql.NullTime{Time: t.ExpiresAt, Valid: !t.ExpiresAt.IsZero()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.PrincipalID, t.TokenHash, t.TokenVersionAtIssue, t.CreatedAt, expiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByHash returns the row for hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*domain.IssuedRefreshToken, error) {
	t, err := scanRefreshToken(r.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListByPrincipal returns all rows for principalID ordered by created_at descending.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.IssuedRefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE principal_id = $1 ORDER BY created_at DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.IssuedRefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row rowScanner) (*domain.IssuedRefreshToken, error) {
	var (
		t         domain.IssuedRefreshToken
		expiresAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.PrincipalID, &t.TokenHash, &t.TokenVersionAtIssue, &t.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t.ExpiresAt = expiresAt.Time
	}
	return &t, nil
}
