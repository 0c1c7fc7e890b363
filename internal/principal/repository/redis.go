package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"bottle-monitor/backend/internal/db"
	"bottle-monitor/backend/internal/principal/domain"
)

// Lua script results.
const (
	redisMissing  = -1
	redisConflict = -2
)

// createScript inserts the principal hash and its uniqueness keys in one step.
// KEYS: principal hash, email key, [federated key]. ARGV: id, then field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 'id' end
if redis.call('EXISTS', KEYS[2]) == 1 then return 'email' end
if #KEYS == 3 and redis.call('EXISTS', KEYS[3]) == 1 then return 'federated' end
redis.call('SET', KEYS[2], ARGV[1])
if #KEYS == 3 then redis.call('SET', KEYS[3], ARGV[1]) end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 'ok'
`)

// bumpScript increments token_version of an existing hash. HINCRBY alone would
// create the hash for an unknown id.
var bumpScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'token_version', 1)
`)

// casBumpScript increments token_version only when it equals ARGV[1].
var casBumpScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'token_version')
if not v then return -1 end
if tonumber(v) ~= tonumber(ARGV[1]) then return -2 end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return redis.call('HINCRBY', KEYS[1], 'token_version', 1)
`)

var setDisabledScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'disabled', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

// RedisRepository stores each principal as a hash under {<prefix>}:principal:<id>,
// with string keys mapping the email key and federated id to the principal id.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a principal repository backed by client. Keys live
// under the {prefix} hash tag.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: db.RedisKeyspace(prefix)}
}

func (r *RedisRepository) principalKey(id string) string { return r.prefix + ":principal:" + id }
func (r *RedisRepository) emailKey(key string) string    { return r.prefix + ":principal:email:" + key }
func (r *RedisRepository) federatedKey(id string) string { return r.prefix + ":principal:federated:" + id }

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	if id == "" {
		return nil, nil
	}
	fields, err := r.client.HGetAll(ctx, r.principalKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodePrincipal(fields)
}

func (r *RedisRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.getByIndex(ctx, r.emailKey(domain.EmailKey(email)))
}

func (r *RedisRepository) GetByFederatedID(ctx context.Context, federatedID string) (*domain.Principal, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.getByIndex(ctx, r.federatedKey(federatedID))
}

func (r *RedisRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	keys := []string{r.principalKey(p.ID), r.emailKey(domain.EmailKey(p.Email))}
	if p.FederatedID != "" {
		keys = append(keys, r.federatedKey(p.FederatedID))
	}
	args := append([]interface{}{p.ID}, encodePrincipal(p)...)
	res, err := createScript.Run(ctx, r.client, keys, args...).Text()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "id":
		return ErrIDTaken
	case "email":
		return ErrEmailTaken
	case "federated":
		return ErrFederatedIDTaken
	default:
		return errors.New("redis: unexpected create result " + res)
	}
}

func (r *RedisRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	v, err := bumpScript.Run(ctx, r.client, []string{r.principalKey(id)}, formatTime(time.Now())).Int64()
	if err != nil {
		return 0, err
	}
	if v == redisMissing {
		return 0, ErrNotFound
	}
	return v, nil
}

func (r *RedisRepository) CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error) {
	v, err := casBumpScript.Run(ctx, r.client, []string{r.principalKey(id)}, expected, formatTime(time.Now())).Int64()
	if err != nil {
		return 0, err
	}
	if v == redisMissing || v == redisConflict {
		return 0, ErrVersionConflict
	}
	return v, nil
}

func (r *RedisRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	v, err := setDisabledScript.Run(ctx, r.client, []string{r.principalKey(id)}, strconv.FormatBool(disabled), formatTime(time.Now())).Int64()
	if err != nil {
		return err
	}
	if v == redisMissing {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) getByIndex(ctx context.Context, indexKey string) (*domain.Principal, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func encodePrincipal(p *domain.Principal) []interface{} {
	return []interface{}{
		"id", p.ID,
		"email", p.Email,
		"display_name", p.DisplayName,
		"password_hash", p.PasswordHash,
		"federated_id", p.FederatedID,
		"disabled", strconv.FormatBool(p.Disabled),
		"token_version", strconv.FormatInt(p.TokenVersion, 10),
		"created_at", formatTime(p.CreatedAt),
		"updated_at", formatTime(p.UpdatedAt),
	}
}

func decodePrincipal(f map[string]string) (*domain.Principal, error) {
	version, err := strconv.ParseInt(f["token_version"], 10, 64)
	if err != nil {
		return nil, err
	}
	disabled, err := strconv.ParseBool(f["disabled"])
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f["created_at"])
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, f["updated_at"])
	if err != nil {
		return nil, err
	}
	return &domain.Principal{
		ID:           f["id"],
		Email:        f["email"],
		DisplayName:  f["display_name"],
		PasswordHash: f["password_hash"],
		FederatedID:  f["federated_id"],
		Disabled:     disabled,
		TokenVersion: version,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
