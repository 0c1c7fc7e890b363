package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"bottle-monitor/backend/internal/db"
	"bottle-monitor/backend/internal/refreshtoken/domain"
)

// createScript writes the token hash once and indexes it under the principal.
// KEYS: token hash key, principal index key. ARGV: score, token hash, field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// RedisRepository stores each row as a hash under {<prefix>}:refresh:<hash> and a
// per-principal sorted set of hashes scored by creation time.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a refresh token repository backed by client.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: db.RedisKeyspace(prefix)}
}

func (r *RedisRepository) tokenKey(hash string) string { return r.prefix + ":refresh:" + hash }
func (r *RedisRepository) principalIndexKey(principalID string) string {
	return r.prefix + ":principal:" + principalID + ":refresh"
}

func (r *RedisRepository) Create(ctx context.Context, t *domain.IssuedRefreshToken) error {
	if err := t.Validate(); err != nil {
		return err
	}
	args := []interface{}{
		strconv.FormatInt(t.CreatedAt.UnixNano(), 10),
		t.TokenHash,
		"id", t.ID,
		"principal_id", t.PrincipalID,
		"token_hash", t.TokenHash,
		"token_version_at_issue", strconv.FormatInt(t.TokenVersionAtIssue, 10),
		"created_at", formatTime(t.CreatedAt),
		"expires_at", formatTime(t.ExpiresAt),
	}
	created, err := createScript.Run(ctx, r.client,
		[]string{r.tokenKey(t.TokenHash), r.principalIndexKey(t.PrincipalID)}, args...).Int64()
	if err != nil {
		return err
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisRepository) GetByHash(ctx context.Context, hash string) (*domain.IssuedRefreshToken, error) {
	if hash == "" {
		return nil, nil
	}
	fields, err := r.client.HGetAll(ctx, r.tokenKey(hash)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRefreshToken(fields)
}

func (r *RedisRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.IssuedRefreshToken, error) {
	hashes, err := r.client.ZRevRange(ctx, r.principalIndexKey(principalID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringStringMapCmd, len(hashes))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, r.tokenKey(h))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.IssuedRefreshToken, 0, len(hashes))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		t, err := decodeRefreshToken(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeRefreshToken(f map[string]string) (*domain.IssuedRefreshToken, error) {
	version, err := strconv.ParseInt(f["token_version_at_issue"], 10, 64)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(f["created_at"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseTime(f["expires_at"])
	if err != nil {
		return nil, err
	}
	return &domain.IssuedRefreshToken{
		ID:                  f["id"],
		PrincipalID:         f["principal_id"],
		TokenHash:           f["token_hash"],
		TokenVersionAtIssue: version,
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
	}, nil
}

// timeLayout is fixed-width so encoded times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime encodes the zero time as an empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
