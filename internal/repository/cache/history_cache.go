package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:histories:"

// HistoryCache keeps each owner's history list in Redis. A nil client or any
// Redis failure degrades to a cache miss.
//
// Entries are keyed by a per-owner generation that Invalidate bumps. A reader
// that loaded from the database before an invalidation writes back under the
// old generation, which no later Get reads.
type HistoryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

// Generation identifies the cache epoch a miss was observed in. Pass it back to Set.
type Generation int64

func NewHistoryCache(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *HistoryCache {
	return &HistoryCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: log,
	}
}

func generationKey(ownerId uuid.UUID) string {
	return fmt.Sprintf("%s%s:gen", keyPrefix, ownerId)
}

func key(ownerId uuid.UUID, gen Generation) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, ownerId, gen)
}

func (c *HistoryCache) generation(ctx context.Context, ownerId uuid.UUID) (Generation, error) {
	n, err := c.rdb.Get(ctx, generationKey(ownerId)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Generation(n), err
}

// Get returns the cached list, or on a miss the generation to hand to Set.
func (c *HistoryCache) Get(ctx context.Context, ownerId uuid.UUID) ([]*entity.ChatHistory, Generation, bool) {
	if c == nil || c.rdb == nil {
		return nil, 0, false
	}

	gen, err := c.generation(ctx, ownerId)
	if err != nil {
		c.warn("Failed to read history cache generation", ownerId, err)
		return nil, 0, false
	}

	raw, err := c.rdb.Get(ctx, key(ownerId, gen)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("Failed to read history cache", ownerId, err)
		}
		return nil, gen, false
	}

	var histories []*entity.ChatHistory
	if err := json.Unmarshal(raw, &histories); err != nil {
		c.warn("Discarding corrupt history cache entry", ownerId, err)
		return nil, gen, false
	}
	return histories, gen, true
}

// Set stores histories under gen. It is a no-op in effect when Invalidate ran since gen was read.
func (c *HistoryCache) Set(ctx context.Context, ownerId uuid.UUID, gen Generation, histories []*entity.ChatHistory) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(histories)
	if err != nil {
		c.warn("Failed to encode history cache entry", ownerId, err)
		return
	}
	if err := c.rdb.Set(ctx, key(ownerId, gen), raw, c.ttl).Err(); err != nil {
		c.warn("Failed to write history cache", ownerId, err)
	}
}

func (c *HistoryCache) Invalidate(ctx context.Context, ownerId uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(ownerId))
		if c.ttl > 0 {
			// Outlives every entry written under an older generation.
			pipe.Expire(ctx, generationKey(ownerId), 2*c.ttl)
		}
		return nil
	})
	if err != nil {
		c.warn("Failed to invalidate history cache", ownerId, err)
	}
}

func (c *HistoryCache) warn(message string, ownerId uuid.UUID, err error) {
	c.logger.Warn("HISTORY_CACHE", message, map[string]interface{}{
		"owner_id": ownerId.String(),
		"error":    err.Error(),
	})
}
