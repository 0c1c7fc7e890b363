package repository

import (
	"context"

	"bottle-monitor/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByPrincipal returns the newest entries for principalID, at most limit.
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error)
}
