package repository

import (
	"context"
	"database/sql"

	"bottle-monitor/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	pid := sql.NullString{String: a.PrincipalID, Valid: a.PrincipalID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, principal_id, action, resource, ip, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, pid, a.Action, a.Resource, a.IP, meta, a.CreatedAt,
	)
	return err
}

// ListByPrincipal returns audit logs for principalID, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, principal_id, action, resource, ip, metadata, created_at FROM audit_logs
WHERE principal_id = $1 ORDER BY created_at DESC LIMIT $2`, principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			pid  sql.NullString
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &pid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.PrincipalID = pid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
