package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	principaldomain "bottle-monitor/backend/internal/principal/domain"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	refreshdomain "bottle-monitor/backend/internal/refreshtoken/domain"
	refreshrepo "bottle-monitor/backend/internal/refreshtoken/repository"
	"bottle-monitor/backend/internal/security"
)

type fixture struct {
	principals *principalrepo.MemoryRepository
	refresh    *refreshrepo.MemoryRepository
	manager    *Manager
	principal  *principaldomain.Principal
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	principals := principalrepo.NewMemoryRepository()
	refresh := refreshrepo.NewMemoryRepository()
	now := time.Now().UTC()
	p := &principaldomain.Principal{
		ID:           "principal-1",
		Email:        "user@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := principals.Create(context.Background(), p); err != nil {
		t.Fatalf("Create principal: %v", err)
	}
	return &fixture{
		principals: principals,
		refresh:    refresh,
		manager:    NewManager(principals, refresh, tokens, opts),
		principal:  p,
	}
}

func (f *fixture) current(t *testing.T) *principaldomain.Principal {
	t.Helper()
	p, err := f.principals.GetByID(context.Background(), f.principal.ID)
	if err != nil || p == nil {
		t.Fatalf("GetByID: %v, %v", p, err)
	}
	return p
}

func (f *fixture) row(t *testing.T, refreshToken string) *refreshdomain.IssuedRefreshToken {
	t.Helper()
	row, err := f.refresh.GetByHash(context.Background(), security.HashRefreshToken(refreshToken))
	if err != nil || row == nil {
		t.Fatalf("GetByHash: %v, %v", row, err)
	}
	return row
}

func TestIssue(t *testing.T) {
	f := newFixture(t, Options{RefreshTTL: time.Hour})
	ctx := context.Background()
	pair, err := f.manager.Issue(ctx, f.current(t))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Issue returned empty tokens")
	}
	if pair.RefreshExpiresAt.IsZero() {
		t.Error("RefreshExpiresAt should be set when RefreshTTL > 0")
	}
	row := f.row(t, pair.RefreshToken)
	if row.TokenHash == pair.RefreshToken {
		t.Error("store must hold the hash, not the token")
	}
	if row.TokenVersionAtIssue != 0 || row.PrincipalID != f.principal.ID {
		t.Errorf("row = %+v, want principal-1 at version 0", row)
	}

	// A second login leaves the first lineage valid.
	second, err := f.manager.Issue(ctx, f.current(t))
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if second.RefreshToken == pair.RefreshToken {
		t.Error("refresh tokens must be unique")
	}
	lineages, err := f.manager.Lineages(ctx, f.principal.ID)
	if err != nil {
		t.Fatalf("Lineages: %v", err)
	}
	if len(lineages) != 2 || !lineages[0].Current || !lineages[1].Current {
		t.Errorf("want two current lineages, got %+v", lineages)
	}
}

func TestIssue_NonExpiringRefresh(t *testing.T) {
	f := newFixture(t, Options{})
	pair, err := f.manager.Issue(context.Background(), f.current(t))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !pair.RefreshExpiresAt.IsZero() || !f.row(t, pair.RefreshToken).ExpiresAt.IsZero() {
		t.Error("RefreshTTL 0 should issue a non-expiring refresh token")
	}
}

func TestIssue_DisabledPrincipal(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.current(t)
	p.Disabled = true
	if _, err := f.manager.Issue(context.Background(), p); !errors.Is(err, ErrPrincipalDisabled) {
		t.Fatalf("want ErrPrincipalDisabled, got %v", err)
	}
	if _, err := f.manager.Issue(context.Background(), nil); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("nil principal: want ErrPrincipalNotFound, got %v", err)
	}
}

func TestRotate_VersionScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a, err := f.manager.Issue(ctx, f.current(t))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := f.row(t, a.RefreshToken).TokenVersionAtIssue; got != 0 {
		t.Fatalf("row A version = %d, want 0", got)
	}

	b, err := f.manager.Rotate(ctx, a.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate A: %v", err)
	}
	if v := f.current(t).TokenVersion; v != 1 {
		t.Fatalf("version after first rotate = %d, want 1", v)
	}
	if got := f.row(t, b.RefreshToken).TokenVersionAtIssue; got != 1 {
		t.Fatalf("row B version = %d, want 1", got)
	}
	if b.TokenVersion != 1 {
		t.Errorf("pair version = %d, want 1", b.TokenVersion)
	}

	if _, err := f.manager.Rotate(ctx, a.RefreshToken); !errors.Is(err, ErrRefreshStale) {
		t.Fatalf("Rotate stale A: want ErrRefreshStale, got %v", err)
	}
	// Row A is kept, not deleted.
	f.row(t, a.RefreshToken)

	if _, err := f.manager.Rotate(ctx, b.RefreshToken); err != nil {
		t.Fatalf("Rotate B: %v", err)
	}
	if v := f.current(t).TokenVersion; v != 2 {
		t.Fatalf("version after second rotate = %d, want 2", v)
	}
}

func TestRotate_NoReuse(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	first, _ := f.manager.Issue(ctx, f.current(t))

	next, err := f.manager.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := f.manager.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshStale) {
		t.Fatalf("reusing input: want ErrRefreshStale, got %v", err)
	}
	third, err := f.manager.Rotate(ctx, next.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate returned token: %v", err)
	}
	if _, err := f.manager.Rotate(ctx, next.RefreshToken); !errors.Is(err, ErrRefreshStale) {
		t.Fatalf("reusing returned token: want ErrRefreshStale, got %v", err)
	}
	if _, err := f.manager.Rotate(ctx, third.RefreshToken); err != nil {
		t.Fatalf("Rotate latest: %v", err)
	}
}

func TestRotate_Concurrent(t *testing.T) {
	for _, n := range []int{2, 8, 32} {
		f := newFixture(t, Options{})
		ctx := context.Background()
		pair, _ := f.manager.Issue(ctx, f.current(t))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			stale     int
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := f.manager.Rotate(ctx, pair.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrRefreshStale):
					stale++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()
		if successes != 1 || stale != n-1 {
			t.Errorf("n=%d: successes=%d stale=%d, want 1 and %d", n, successes, stale, n-1)
		}
		if v := f.current(t).TokenVersion; v != 1 {
			t.Errorf("n=%d: version = %d, want 1", n, v)
		}
	}
}

func TestRotate_Rejections(t *testing.T) {
	f := newFixture(t, Options{RefreshTTL: time.Hour})
	ctx := context.Background()

	for _, tok := range []string{"", "never-issued"} {
		if _, err := f.manager.Rotate(ctx, tok); !errors.Is(err, ErrRefreshNotFound) {
			t.Errorf("Rotate(%q): want ErrRefreshNotFound, got %v", tok, err)
		}
	}

	pair, _ := f.manager.Issue(ctx, f.current(t))
	f.manager.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if _, err := f.manager.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshExpired) {
		t.Errorf("expired: want ErrRefreshExpired, got %v", err)
	}
	f.manager.SetClock(time.Now)

	if err := f.principals.SetDisabled(ctx, f.principal.ID, true); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}
	if _, err := f.manager.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrPrincipalDisabled) {
		t.Errorf("disabled: want ErrPrincipalDisabled, got %v", err)
	}
}

func TestRotate_OrphanRow(t *testing.T) {
	f := newFixture(t, Options{})
	plain, hash, _ := security.NewRefreshToken()
	err := f.refresh.Create(context.Background(), &refreshdomain.IssuedRefreshToken{
		ID: "orphan", PrincipalID: "deleted-principal", TokenHash: hash, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.manager.Rotate(context.Background(), plain); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("want ErrRefreshNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	var pairs []string
	for i := 0; i < 3; i++ {
		p, _ := f.manager.Issue(ctx, f.current(t))
		pairs = append(pairs, p.RefreshToken)
	}
	v, err := f.manager.Revoke(ctx, f.principal.ID)
	if err != nil || v != 1 {
		t.Fatalf("Revoke = %d, %v; want 1, nil", v, err)
	}
	for i, tok := range pairs {
		if _, err := f.manager.Rotate(ctx, tok); !errors.Is(err, ErrRefreshStale) {
			t.Errorf("token %d after revoke: want ErrRefreshStale, got %v", i, err)
		}
	}
	v, err = f.manager.Revoke(ctx, f.principal.ID)
	if err != nil || v != 2 {
		t.Fatalf("second Revoke = %d, %v; want 2, nil", v, err)
	}
	if _, err := f.manager.Revoke(ctx, "missing"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("missing principal: want ErrPrincipalNotFound, got %v", err)
	}

	// Tokens issued after revoke work.
	fresh, _ := f.manager.Issue(ctx, f.current(t))
	if _, err := f.manager.Rotate(ctx, fresh.RefreshToken); err != nil {
		t.Fatalf("Rotate after revoke: %v", err)
	}
}

func TestRevokeByRefreshToken(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a, _ := f.manager.Issue(ctx, f.current(t))
	b, _ := f.manager.Issue(ctx, f.current(t))

	pid, v, err := f.manager.RevokeByRefreshToken(ctx, a.RefreshToken)
	if err != nil {
		t.Fatalf("RevokeByRefreshToken: %v", err)
	}
	if pid != f.principal.ID || v != 1 {
		t.Errorf("got (%q, %d), want (%q, 1)", pid, v, f.principal.ID)
	}
	if _, err := f.manager.Rotate(ctx, b.RefreshToken); !errors.Is(err, ErrRefreshStale) {
		t.Errorf("other lineage after logout: want ErrRefreshStale, got %v", err)
	}
	if _, _, err := f.manager.RevokeByRefreshToken(ctx, "unknown"); !errors.Is(err, ErrRefreshNotFound) {
		t.Errorf("unknown token: want ErrRefreshNotFound, got %v", err)
	}
}

func TestRotate_RevokeOnReuse(t *testing.T) {
	f := newFixture(t, Options{RevokeOnReuse: true})
	ctx := context.Background()
	a, _ := f.manager.Issue(ctx, f.current(t))
	b, err := f.manager.Rotate(ctx, a.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	// Replaying A ends B's lineage too.
	_, err = f.manager.Rotate(ctx, a.RefreshToken)
	var rej *RejectionError
	if !errors.As(err, &rej) || !errors.Is(err, ErrRefreshStale) {
		t.Fatalf("replay: want RejectionError(ErrRefreshStale), got %v", err)
	}
	if !rej.Revoked || rej.PrincipalID != f.principal.ID {
		t.Errorf("rejection = %+v, want revoked for %s", rej, f.principal.ID)
	}
	if v := f.current(t).TokenVersion; v != 2 {
		t.Errorf("version after replay = %d, want 2", v)
	}
	if _, err := f.manager.Rotate(ctx, b.RefreshToken); !errors.Is(err, ErrRefreshStale) {
		t.Errorf("B after replay: want ErrRefreshStale, got %v", err)
	}
}

func TestRotate_RejectOnlyByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a, _ := f.manager.Issue(ctx, f.current(t))
	b, _ := f.manager.Rotate(ctx, a.RefreshToken)
	_, err := f.manager.Rotate(ctx, a.RefreshToken)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Revoked || rej.PrincipalID != f.principal.ID {
		t.Errorf("replay rejection = %v, want unrevoked for %s", err, f.principal.ID)
	}
	if v := f.current(t).TokenVersion; v != 1 {
		t.Errorf("version after replay = %d, want 1", v)
	}
	if _, err := f.manager.Rotate(ctx, b.RefreshToken); err != nil {
		t.Errorf("B should survive a replay of A: %v", err)
	}
}

// failingRefreshRepo fails every call, standing in for an unreachable store.
type failingRefreshRepo struct{ err error }

func (r failingRefreshRepo) Create(context.Context, *refreshdomain.IssuedRefreshToken) error {
	return r.err
}
func (r failingRefreshRepo) GetByHash(context.Context, string) (*refreshdomain.IssuedRefreshToken, error) {
	return nil, r.err
}
func (r failingRefreshRepo) ListByPrincipal(context.Context, string) ([]*refreshdomain.IssuedRefreshToken, error) {
	return nil, r.err
}

// slowRefreshRepo blocks until the context ends.
type slowRefreshRepo struct{ failingRefreshRepo }

func (slowRefreshRepo) GetByHash(ctx context.Context, _ string) (*refreshdomain.IssuedRefreshToken, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreUnavailable(t *testing.T) {
	tokens, _ := security.NewTestTokenProvider()
	principals := principalrepo.NewMemoryRepository()
	cause := errors.New("connection refused")
	m := NewManager(principals, failingRefreshRepo{err: cause}, tokens, Options{})

	_, err := m.Rotate(context.Background(), "some-token")
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("Rotate: want ErrStoreUnavailable wrapping cause, got %v", err)
	}
	if errors.Is(err, ErrRefreshNotFound) {
		t.Fatal("store failure must not look like not-found")
	}
	_, err = m.Issue(context.Background(), &principaldomain.Principal{ID: "p1"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Issue: want ErrStoreUnavailable, got %v", err)
	}
}

func TestStoreTimeout(t *testing.T) {
	tokens, _ := security.NewTestTokenProvider()
	m := NewManager(principalrepo.NewMemoryRepository(), slowRefreshRepo{}, tokens, Options{StoreTimeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := m.Rotate(context.Background(), "some-token")
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want ErrStoreUnavailable wrapping DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("store timeout was not applied")
	}
}

func TestLineages(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a, _ := f.manager.Issue(ctx, f.current(t))
	if _, err := f.manager.Rotate(ctx, a.RefreshToken); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	lineages, err := f.manager.Lineages(ctx, f.principal.ID)
	if err != nil {
		t.Fatalf("Lineages: %v", err)
	}
	var current int
	for _, l := range lineages {
		if l.Current {
			current++
		}
	}
	if len(lineages) != 2 || current != 1 {
		t.Errorf("want 2 lineages with 1 current, got %+v", lineages)
	}
	if _, err := f.manager.Lineages(ctx, "missing"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("missing principal: want ErrPrincipalNotFound, got %v", err)
	}
}
