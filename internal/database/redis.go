package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
)

// NewRedisClient creates and validates the Redis client backing the
// snapshot store.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := snapshotRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("store", "snapshot").
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Dur("ttl", cfg.SnapshotTTL).
		Msg("Redis connected")

	return rdb, nil
}

// snapshotRedisOptions bounds every round trip by the store timeout and
// shares the connection budget with the SQL drivers. Options given in the
// URL are kept.
func snapshotRedisOptions(cfg *config.Config) (*redis.Options, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if opt.ClientName == "" {
		opt.ClientName = applicationName
	}
	if cfg.StoreTimeout > 0 {
		if opt.DialTimeout == 0 {
			opt.DialTimeout = cfg.StoreTimeout
		}
		if opt.ReadTimeout == 0 {
			opt.ReadTimeout = cfg.StoreTimeout
		}
		if opt.WriteTimeout == 0 {
			opt.WriteTimeout = cfg.StoreTimeout
		}
	}
	if opt.PoolSize == 0 && cfg.MaxDBConns > 0 {
		opt.PoolSize = int(cfg.MaxDBConns)
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = 1
	}
	return opt, nil
}
