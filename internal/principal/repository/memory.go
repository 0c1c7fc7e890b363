package repository

import (
	"context"
	"sync"
	"time"

	"bottle-monitor/backend/internal/principal/domain"
)

// MemoryRepository is a Repository held in process memory. Suitable for tests and
// single-instance development.
type MemoryRepository struct {
	mu          sync.Mutex
	byID        map[string]*domain.Principal
	byEmail     map[string]string
	byFederated map[string]string
	now         func() time.Time
}

// NewMemoryRepository returns an empty in-memory principal repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:        make(map[string]*domain.Principal),
		byEmail:     make(map[string]string),
		byFederated: make(map[string]string),
		now:         time.Now,
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(id), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(r.byEmail[domain.EmailKey(email)]), nil
}

func (r *MemoryRepository) GetByFederatedID(ctx context.Context, federatedID string) (*domain.Principal, error) {
	if federatedID == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(r.byFederated[federatedID]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := domain.EmailKey(p.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; ok {
		return ErrIDTaken
	}
	if _, ok := r.byEmail[key]; ok {
		return ErrEmailTaken
	}
	if p.FederatedID != "" {
		if _, ok := r.byFederated[p.FederatedID]; ok {
			return ErrFederatedIDTaken
		}
		r.byFederated[p.FederatedID] = p.ID
	}
	c := *p
	r.byID[p.ID] = &c
	r.byEmail[key] = p.ID
	return nil
}

func (r *MemoryRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.TokenVersion++
	p.UpdatedAt = r.now().UTC()
	return p.TokenVersion, nil
}

func (r *MemoryRepository) CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.TokenVersion != expected {
		return 0, ErrVersionConflict
	}
	p.TokenVersion++
	p.UpdatedAt = r.now().UTC()
	return p.TokenVersion, nil
}

func (r *MemoryRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Disabled = disabled
	p.UpdatedAt = r.now().UTC()
	return nil
}

// copyOf must be called with r.mu held.
func (r *MemoryRepository) copyOf(id string) *domain.Principal {
	p, ok := r.byID[id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}
