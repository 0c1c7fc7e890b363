// Package store opens the credential store backend selected by configuration.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	auditrepo "bottle-monitor/backend/internal/audit/repository"
	"bottle-monitor/backend/internal/config"
	"bottle-monitor/backend/internal/db"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	refreshrepo "bottle-monitor/backend/internal/refreshtoken/repository"
)

// Store bundles the repositories of one backend.
type Store struct {
	Backend       string
	Principals    principalrepo.Repository
	RefreshTokens refreshrepo.Repository
	// Audit is nil for backends without an audit table (redis, dynamodb).
	Audit auditrepo.Repository

	ping    func(ctx context.Context) error
	closers []func() error
}

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("using in-memory credential store; state is lost on restart")
		return NewMemory(), nil
	case config.BackendPostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("store: postgres: %w", err)
		}
		return newPostgres(conn), nil
	case config.BackendRedis:
		client, err := db.OpenRedis(ctx, db.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("store: redis: %w", err)
		}
		return newRedis(client, cfg.RedisKeyPrefix), nil
	case config.BackendDynamoDB:
		client, err := db.OpenDynamo(ctx, db.DynamoOptions{Region: cfg.AWSRegion, Endpoint: cfg.DynamoDBEndpoint})
		if err != nil {
			return nil, fmt.Errorf("store: dynamodb: %w", err)
		}
		tables := db.NewDynamoTables(cfg.DynamoDBTablePrefix)
		if cfg.DynamoDBCreateTables {
			if err := db.EnsureTables(ctx, client, tables); err != nil {
				return nil, fmt.Errorf("store: dynamodb: %w", err)
			}
			log.Info("dynamodb tables ready", zap.String("prefix", cfg.DynamoDBTablePrefix))
		}
		return newDynamo(client, tables), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.StoreBackend)
	}
}

// NewMemory returns a process-local store.
func NewMemory() *Store {
	return &Store{
		Backend:       config.BackendMemory,
		Principals:    principalrepo.NewMemoryRepository(),
		RefreshTokens: refreshrepo.NewMemoryRepository(),
		Audit:         auditrepo.NewMemoryRepository(),
	}
}

func newPostgres(conn *sql.DB) *Store {
	return &Store{
		Backend:       config.BackendPostgres,
		Principals:    principalrepo.NewPostgresRepository(conn),
		RefreshTokens: refreshrepo.NewPostgresRepository(conn),
		Audit:         auditrepo.NewPostgresRepository(conn),
		ping:          conn.PingContext,
		closers:       []func() error{conn.Close},
	}
}

func newRedis(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		Backend:       config.BackendRedis,
		Principals:    principalrepo.NewRedisRepository(client, prefix),
		RefreshTokens: refreshrepo.NewRedisRepository(client, prefix),
		ping:          func(ctx context.Context) error { return client.Ping(ctx).Err() },
		closers:       []func() error{client.Close},
	}
}

func newDynamo(client *dynamodb.Client, tables db.DynamoTables) *Store {
	return &Store{
		Backend:       config.BackendDynamoDB,
		Principals:    principalrepo.NewDynamoRepository(client, tables.Principals, tables.PrincipalKeys),
		RefreshTokens: refreshrepo.NewDynamoRepository(client, tables.RefreshTokens, db.PrincipalRefreshIndex),
		ping: func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tables.Principals)})
			return err
		},
	}
}

// Ping checks backend connectivity. The memory backend is always reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases backend connections.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
