package repository

import (
	"context"
	"sync"

	"bottle-monitor/backend/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory, oldest first.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.entries = append(r.entries, &c)
	return nil
}

func (r *MemoryRepository) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for i := len(r.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.entries[i].PrincipalID == principalID {
			c := *r.entries[i]
			out = append(out, &c)
		}
	}
	return out, nil
}
