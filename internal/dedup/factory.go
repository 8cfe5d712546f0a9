package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// Config selects and configures a store backend.
type Config struct {
	Backend  string
	TTL      time.Duration
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	Memory   MemoryConfig
}

// MetricsCollector defines metrics operations for store calls.
type MetricsCollector interface {
	ObserveStoreDuration(backend string, operation string, duration float64)
	IncStoreErrors(backend string, operation string)
}

// New creates the configured store, wrapped with metrics when provided.
func New(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (dedup.Store, error) {
	var (
		store dedup.Store
		err   error
	)

	switch cfg.Backend {
	case backendDynamoDB:
		store, err = NewDynamoDBStore(ctx, cfg.DynamoDB, logger)
	case backendRedis:
		store, err = NewRedisStore(ctx, cfg.Redis, logger)
	case backendMemory:
		memCfg := cfg.Memory
		if memCfg.LifeWindow < cfg.TTL {
			memCfg.LifeWindow = cfg.TTL
		}
		store, err = NewMemoryStore(ctx, memCfg)
		if err == nil {
			logger.Warn("using in-process dedup store; keys are not shared between instances",
				"life_window", memCfg.LifeWindow,
			)
		}
	default:
		return nil, fmt.Errorf("unsupported dedup backend: %s (supported: dynamodb, redis, memory)", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s dedup store: %w", cfg.Backend, err)
	}

	if metrics != nil {
		store = NewInstrumented(store, cfg.Backend, metrics)
	}
	return store, nil
}
