package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/model"
)

// RedisSnapshotRepository stores each entry under its own key with a TTL,
// so abandoned sessions expire on their own.
type RedisSnapshotRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSnapshotRepository creates a new RedisSnapshotRepository.
func NewRedisSnapshotRepository(rdb *redis.Client, ttl time.Duration) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{rdb: rdb, ttl: ttl}
}

// Save writes both entries in one MULTI/EXEC.
func (r *RedisSnapshotRepository) Save(ctx context.Context, sessionID string, state model.AnnotationState) error {
	enc, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.SnapshotHighlightsKey(sessionID), enc.highlights, r.ttl)
		pipe.Set(ctx, config.CacheKey.SnapshotStruckKey(sessionID), enc.struck, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Load(ctx context.Context, sessionID string) (model.AnnotationState, error) {
	vals, err := r.rdb.MGet(ctx,
		config.CacheKey.SnapshotHighlightsKey(sessionID),
		config.CacheKey.SnapshotStruckKey(sessionID),
	).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.AnnotationState{}, fmt.Errorf("load snapshot: %w", err)
	}

	raw := make([][]byte, 2)
	for i, v := range vals {
		if s, ok := v.(string); ok {
			raw[i] = []byte(s)
		}
	}
	return decodeSnapshot(raw[0], raw[1])
}

func (r *RedisSnapshotRepository) Purge(ctx context.Context, sessionID string) error {
	err := r.rdb.Del(ctx,
		config.CacheKey.SnapshotHighlightsKey(sessionID),
		config.CacheKey.SnapshotStruckKey(sessionID),
	).Err()
	if err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}
	return nil
}
