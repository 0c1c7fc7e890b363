package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottle-monitor/backend/internal/db"
	"bottle-monitor/backend/internal/db/migrate"
	principaldomain "bottle-monitor/backend/internal/principal/domain"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	"bottle-monitor/backend/internal/refreshtoken/domain"
	"bottle-monitor/backend/internal/security"
)

func newToken(principalID string, version int64, createdAt time.Time) *domain.IssuedRefreshToken {
	_, hash, err := security.NewRefreshToken()
	if err != nil {
		panic(err)
	}
	return &domain.IssuedRefreshToken{
		ID:                  uuid.New().String(),
		PrincipalID:         principalID,
		TokenHash:           hash,
		TokenVersionAtIssue: version,
		CreatedAt:           createdAt.UTC().Truncate(time.Millisecond),
	}
}

// testRepository runs the shared behaviour. newPrincipal returns the id of a
// principal that rows may reference.
func testRepository(t *testing.T, repo Repository, newPrincipal func(t *testing.T) string) {
	ctx := context.Background()

	t.Run("create and get by hash", func(t *testing.T) {
		pid := newPrincipal(t)
		tok := newToken(pid, 3, time.Now())
		tok.ExpiresAt = tok.CreatedAt.Add(time.Hour)
		require.NoError(t, repo.Create(ctx, tok))

		got, err := repo.GetByHash(ctx, tok.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tok.ID, got.ID)
		assert.Equal(t, pid, got.PrincipalID)
		assert.Equal(t, int64(3), got.TokenVersionAtIssue)
		assert.True(t, tok.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, tok.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("non-expiring round trip", func(t *testing.T) {
		tok := newToken(newPrincipal(t), 0, time.Now())
		require.NoError(t, repo.Create(ctx, tok))
		got, err := repo.GetByHash(ctx, tok.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.ExpiresAt.IsZero())
		assert.False(t, got.Expired(time.Now().AddDate(100, 0, 0)))
	})

	t.Run("unknown hash", func(t *testing.T) {
		got, err := repo.GetByHash(ctx, security.HashRefreshToken("never-issued"))
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = repo.GetByHash(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate hash", func(t *testing.T) {
		pid := newPrincipal(t)
		a := newToken(pid, 0, time.Now())
		require.NoError(t, repo.Create(ctx, a))
		b := newToken(pid, 0, time.Now())
		b.TokenHash = a.TokenHash
		assert.ErrorIs(t, repo.Create(ctx, b), ErrDuplicate)
	})

	t.Run("list by principal newest first", func(t *testing.T) {
		pid := newPrincipal(t)
		base := time.Now()
		first := newToken(pid, 0, base.Add(-2*time.Minute))
		second := newToken(pid, 1, base.Add(-time.Minute))
		third := newToken(pid, 2, base)
		for _, tok := range []*domain.IssuedRefreshToken{second, first, third} {
			require.NoError(t, repo.Create(ctx, tok))
		}
		require.NoError(t, repo.Create(ctx, newToken(newPrincipal(t), 0, base)))

		list, err := repo.ListByPrincipal(ctx, pid)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, third.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)
		assert.Equal(t, first.ID, list[2].ID)

		empty, err := repo.ListByPrincipal(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("invalid row", func(t *testing.T) {
		tok := newToken(newPrincipal(t), 0, time.Now())
		tok.TokenHash = ""
		assert.Error(t, repo.Create(ctx, tok))
	})
}

func anyPrincipal(t *testing.T) string { return uuid.New().String() }

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemoryRepository(), anyPrincipal)
}

func TestRedisRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	testRepository(t, NewRedisRepository(client, "test"), anyPrincipal)
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewRedisRepository(client, "bm")

	tok := newToken("p-1", 0, time.Now())
	require.NoError(t, repo.Create(context.Background(), tok))

	assert.True(t, mr.Exists("{bm}:refresh:"+tok.TokenHash))
	assert.True(t, mr.Exists("{bm}:principal:p-1:refresh"))
	assert.Len(t, mr.Keys(), 2)
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	require.NoError(t, migrate.EnsureLatest(dsn))
	conn, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	principals := principalrepo.NewPostgresRepository(conn)
	seed := func(t *testing.T) string {
		now := time.Now().UTC()
		p := &principaldomain.Principal{
			ID:           uuid.New().String(),
			Email:        uuid.New().String() + "@example.com",
			PasswordHash: "hash",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, principals.Create(context.Background(), p))
		return p.ID
	}
	testRepository(t, NewPostgresRepository(conn), seed)
}

func TestDynamoRepository(t *testing.T) {
	endpoint := os.Getenv("TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_DYNAMODB_ENDPOINT not set, skipping integration test")
	}
	ctx := context.Background()
	client, err := db.OpenDynamo(ctx, db.DynamoOptions{Region: "us-east-1", Endpoint: endpoint})
	require.NoError(t, err)
	tables := db.NewDynamoTables("test_" + uuid.New().String()[:8] + "_")
	require.NoError(t, db.EnsureTables(ctx, client, tables))
	testRepository(t, NewDynamoRepository(client, tables.RefreshTokens, db.PrincipalRefreshIndex), anyPrincipal)
}

func TestFormatTime_SortsLexically(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	earlier := formatTime(base.Add(100 * time.Millisecond))
	later := formatTime(base.Add(120 * time.Millisecond))
	assert.Less(t, earlier, later)
	assert.Less(t, formatTime(base), earlier)
	assert.Equal(t, "", formatTime(time.Time{}))
}
