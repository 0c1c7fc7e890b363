package federated

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

const (
	// DefaultStateTTL bounds the time between the consent redirect and the callback.
	DefaultStateTTL = 10 * time.Minute
	// DefaultMaxStates caps the live states held by a MemoryStateStore.
	DefaultMaxStates = 10000
	// MaxStateLen is the longest state value accepted from callers.
	MaxStateLen = 128
)

// StateStore remembers the OAuth state values handed out with consent URLs so
// a callback can prove it answers one of them.
type StateStore interface {
	// Put records state until expiresAt.
	Put(ctx context.Context, state string, expiresAt time.Time)
	// Consume reports whether state was recorded and has not expired. A state
	// is accepted at most once.
	Consume(ctx context.Context, state string) bool
}

type stateEntry struct {
	state     string
	expiresAt time.Time
	index     int
}

// expiryHeap orders entries by expiry, soonest first.
type expiryHeap []*stateEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*stateEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// MemoryStateStore is a process-local StateStore holding at most max live
// states. When full, the state closest to expiry is evicted. Callbacks must
// reach the replica that produced the consent URL.
type MemoryStateStore struct {
	mu      sync.Mutex
	byState map[string]*stateEntry
	expiry  expiryHeap
	max     int
	nowF    func() time.Time
}

// NewMemoryStateStore returns an empty store capped at maxStates live states.
// maxStates <= 0 selects DefaultMaxStates.
func NewMemoryStateStore(maxStates int) *MemoryStateStore {
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	return &MemoryStateStore{
		byState: make(map[string]*stateEntry),
		max:     maxStates,
		nowF:    time.Now,
	}
}

// Put records state until expiresAt. Expired states are dropped first, so
// each call costs O(log n) amortized.
func (s *MemoryStateStore) Put(ctx context.Context, state string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	s.dropExpired(now)
	if !expiresAt.After(now) {
		return
	}
	if e, ok := s.byState[state]; ok {
		e.expiresAt = expiresAt
		heap.Fix(&s.expiry, e.index)
		return
	}
	for len(s.expiry) >= s.max {
		e := heap.Pop(&s.expiry).(*stateEntry)
		delete(s.byState, e.state)
	}
	e := &stateEntry{state: state, expiresAt: expiresAt}
	heap.Push(&s.expiry, e)
	s.byState[state] = e
}

// Consume reports whether state is known and unexpired, and forgets it.
func (s *MemoryStateStore) Consume(ctx context.Context, state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byState[state]
	if !ok {
		return false
	}
	heap.Remove(&s.expiry, e.index)
	delete(s.byState, state)
	return e.expiresAt.After(s.nowF())
}

// Len returns the number of recorded states.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byState)
}

func (s *MemoryStateStore) dropExpired(now time.Time) {
	for len(s.expiry) > 0 && !s.expiry[0].expiresAt.After(now) {
		e := heap.Pop(&s.expiry).(*stateEntry)
		delete(s.byState, e.state)
	}
}
