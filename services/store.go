package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cynix/config"
)

// StoreMode indicates which store backend is active
type StoreMode string

const (
	StoreModeRedis    StoreMode = "redis"
	StoreModeInMemory StoreMode = "in-memory"
)

// Store is the shared counter, log and cache store. Implementations must make
// every single-key operation atomic; callers never lock around it.
type Store interface {
	// Incr atomically increments the integer at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Get returns the string at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value with ttl; zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// PushBounded prepends value to the list at key and trims it to maxLen entries.
	PushBounded(ctx context.Context, key, value string, maxLen int64) error
	// Range returns list entries between start and stop inclusive; negative indexes count from the end.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Ping(ctx context.Context) error
	Mode() StoreMode
	Close() error
}

// NewStore connects to Redis when enabled and falls back to the in-memory
// store if Redis is disabled or unreachable.
func NewStore(cfg *config.Config, logger *zap.Logger) Store {
	if !cfg.Redis.Enabled {
		logger.Warn("Redis disabled, using in-memory store")
		return NewMemoryStore()
	}

	rs := NewRedisStore(cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rs.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed, running in DEGRADED mode (in-memory store only)",
			zap.String("address", cfg.Redis.Address),
			zap.Bool("tls", cfg.Redis.UseTLS),
			zap.Error(err))
		_ = rs.Close()
		return NewMemoryStore()
	}

	logger.Info("Redis connected", zap.String("address", cfg.Redis.Address))
	return rs
}
