package access

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const matrixCacheKey = "opsrelay:access:matrix"

// MatrixCache keeps the most recently built matrix in Redis so repeated
// matrix reads do not re-scan all three collections. The cache is a pure
// accelerator: misses and Redis failures fall back to a fresh build.
type MatrixCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewMatrixCache builds MatrixCache instance.
func NewMatrixCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *MatrixCache {
	return &MatrixCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached matrix, or false when absent or unreadable.
func (c *MatrixCache) Get(ctx context.Context) (Matrix, bool) {
	if c == nil || c.client == nil {
		return Matrix{}, false
	}
	raw, err := c.client.Get(ctx, matrixCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("matrix cache read failed", slog.Any("error", err))
		}
		return Matrix{}, false
	}
	var matrix Matrix
	if err := json.Unmarshal(raw, &matrix); err != nil {
		if c.logger != nil {
			c.logger.Warn("matrix cache payload corrupt", slog.Any("error", err))
		}
		return Matrix{}, false
	}
	return matrix, true
}

// Store caches the matrix for the configured TTL. Failures are logged and
// swallowed.
func (c *MatrixCache) Store(ctx context.Context, matrix Matrix) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(matrix)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, matrixCacheKey, raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("matrix cache write failed", slog.Any("error", err))
	}
}

// Invalidate drops the cached matrix. Called after writes that change
// assignments.
func (c *MatrixCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, matrixCacheKey).Err(); err != nil && c.logger != nil {
		c.logger.Warn("matrix cache invalidation failed", slog.Any("error", err))
	}
}
