package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"bottle-monitor/backend/internal/principal/domain"
)

const pgUniqueViolation = "23505"

const principalColumns = `id, email, display_name, password_hash, federated_id, disabled, token_version, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a principal repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
}

// GetByEmail returns the principal whose email matches case-insensitively, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE email_key = $1`, domain.EmailKey(email))
}

// GetByFederatedID returns the principal linked to federatedID, or nil if not found.
func (r *PostgresRepository) GetByFederatedID(ctx context.Context, federatedID string) (*domain.Principal, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE federated_id = $1`, federatedID)
}

// Create persists the principal. The principal must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO principals (id, email, email_key, display_name, password_hash, federated_id, disabled, token_version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Email, domain.EmailKey(p.Email), p.DisplayName,
		nullString(p.PasswordHash), nullString(p.FederatedID),
		p.Disabled, p.TokenVersion, p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "principals_email_key_idx":
			return ErrEmailTaken
		case "principals_federated_id_idx":
			return ErrFederatedIDTaken
		default:
			return ErrIDTaken
		}
	}
	return err
}

// BumpTokenVersion increments token_version in a single UPDATE and returns the new value.
func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE principals SET token_version = token_version + 1, updated_at = $2 WHERE id = $1 RETURNING token_version`,
		id, time.Now().UTC(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return v, err
}

// CompareAndBumpTokenVersion increments token_version only when it equals expected.
// The WHERE clause makes the check and the write one atomic statement.
func (r *PostgresRepository) CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE principals SET token_version = token_version + 1, updated_at = $3 WHERE id = $1 AND token_version = $2 RETURNING token_version`,
		id, expected, time.Now().UTC(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrVersionConflict
	}
	return v, err
}

// SetDisabled sets the disabled flag. Returns ErrNotFound if no row was updated.
func (r *PostgresRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET disabled = $2, updated_at = $3 WHERE id = $1`,
		id, disabled, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Principal, error) {
	var (
		p            domain.Principal
		passwordHash sql.NullString
		federatedID  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Email, &p.DisplayName, &passwordHash, &federatedID,
		&p.Disabled, &p.TokenVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.PasswordHash = passwordHash.String
	p.FederatedID = federatedID.String
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
