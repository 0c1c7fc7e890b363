package repository

import (
	"context"
	"sort"
	"sync"

	"bottle-monitor/backend/internal/refreshtoken/domain"
)

// MemoryRepository is a Repository held in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*domain.IssuedRefreshToken
	ids    map[string]struct{}
}

// NewMemoryRepository returns an empty in-memory refresh token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byHash: make(map[string]*domain.IssuedRefreshToken),
		ids:    make(map[string]struct{}),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t *domain.IssuedRefreshToken) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[t.TokenHash]; ok {
		return ErrDuplicate
	}
	if _, ok := r.ids[t.ID]; ok {
		return ErrDuplicate
	}
	c := *t
	r.byHash[t.TokenHash] = &c
	r.ids[t.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) GetByHash(ctx context.Context, hash string) (*domain.IssuedRefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *MemoryRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.IssuedRefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.IssuedRefreshToken
	for _, t := range r.byHash {
		if t.PrincipalID == principalID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
