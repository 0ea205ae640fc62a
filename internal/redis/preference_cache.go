package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// DefaultPreferenceTTL bounds staleness when an update bypasses Invalidate,
// e.g. a manual SQL fix.
const DefaultPreferenceTTL = 10 * time.Minute

// PreferenceCache caches user preferences as JSON under pref:<user id>.
type PreferenceCache struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPreferenceCache creates a cache. A non-positive ttl uses
// DefaultPreferenceTTL.
func NewPreferenceCache(client *Client, ttl time.Duration, logger *zap.Logger) *PreferenceCache {
	if ttl <= 0 {
		ttl = DefaultPreferenceTTL
	}
	return &PreferenceCache{client: client, ttl: ttl, logger: logger}
}

func preferenceKey(userID uuid.UUID) string {
	return "pref:" + userID.String()
}

// Get returns (nil, nil) on a miss. An undecodable entry is dropped and
// treated as a miss.
func (c *PreferenceCache) Get(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error) {
	val, err := c.client.rdb.Get(ctx, preferenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p db.UserPreference
	if err := json.Unmarshal(val, &p); err != nil {
		c.logger.Warn("dropping corrupt preference cache entry",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		_ = c.client.rdb.Del(ctx, preferenceKey(userID)).Err()
		return nil, nil
	}
	return &p, nil
}

func (c *PreferenceCache) Set(ctx context.Context, p *db.UserPreference) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preference: %w", err)
	}
	if err := c.client.rdb.Set(ctx, preferenceKey(p.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *PreferenceCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.rdb.Del(ctx, preferenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
