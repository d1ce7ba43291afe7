package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RollbackCache fronts the group rollback flags with a short-lived Redis
// cache. Every activity listing needs the flag, so the read path hits Redis
// first and only falls through to Postgres on a miss. Writes invalidate the
// key so a flipped flag is visible on the next read.
type RollbackCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewRollbackCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *RollbackCache {
	return &RollbackCache{kv: kv, ttl: ttl, logger: logger}
}

func rollbackKey(groupID string) string {
	return fmt.Sprintf("changewindow:rollback:%s", groupID)
}

// Get returns the cached flag. The second result is false on a cache miss.
func (c *RollbackCache) Get(ctx context.Context, groupID string) (bool, bool) {
	val, err := c.kv.Get(ctx, rollbackKey(groupID))
	if err != nil {
		if err != ErrCacheMiss {
			c.logger.Warn("rollback cache read failed",
				zap.String("group_id", groupID),
				zap.Error(err),
			)
		}
		return false, false
	}
	return val == "1", true
}

// Put stores the flag for the configured TTL. Cache write failures are not
// fatal: the next read falls through to the database.
func (c *RollbackCache) Put(ctx context.Context, groupID string, active bool) {
	val := "0"
	if active {
		val = "1"
	}
	if err := c.kv.Set(ctx, rollbackKey(groupID), val, c.ttl); err != nil {
		c.logger.Warn("rollback cache write failed",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
	}
}

// Invalidate drops the cached flag after the stored state changes.
func (c *RollbackCache) Invalidate(ctx context.Context, groupID string) {
	if err := c.kv.Del(ctx, rollbackKey(groupID)); err != nil {
		c.logger.Warn("rollback cache invalidation failed",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
	}
}
