package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ dedup.Store  = (*RedisStore)(nil)
	_ dedup.Pinger = (*RedisStore)(nil)
)

const backendRedis = "redis"

// RedisConfig contains Redis store configuration.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// redisAPI is the subset of the go-redis client used by the store.
type redisAPI interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore implements dedup.Store with Redis keys expiring at EXAT.
type RedisStore struct {
	client    redisAPI
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("redis dedup store created",
		"addr", cfg.Addr,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return newRedisStore(client, cfg.KeyPrefix), nil
}

func newRedisStore(client redisAPI, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, s.storeErr("exists", key, err)
	}
	return n > 0, nil
}

// Put sets key to expire at expiresAt.
func (s *RedisStore) Put(ctx context.Context, key string, expiresAt time.Time) error {
	err := s.client.SetArgs(ctx, s.keyPrefix+key, expiresAt.Unix(), redis.SetArgs{
		ExpireAt: expiresAt,
	}).Err()
	if err != nil {
		return s.storeErr("put", key, err)
	}
	return nil
}

// PutIfAbsent uses SET NX so concurrent routers cannot both claim a key.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	err := s.client.SetArgs(ctx, s.keyPrefix+key, expiresAt.Unix(), redis.SetArgs{
		Mode:     "NX",
		ExpireAt: expiresAt,
	}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, s.storeErr("put_if_absent", key, err)
	}
	return false, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.storeErr("ping", "", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) storeErr(op, key string, err error) error {
	return &apperrors.StoreError{Backend: backendRedis, Operation: op, Key: key, Err: err}
}
