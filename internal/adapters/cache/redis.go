// Package cache keeps the latest risk of every device in Redis for
// dashboards that should not query the engine directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

const (
	riskKeyPrefix  = "mids:risk:"
	leaderboardKey = "mids:risk:leaderboard"
)

// ErrNotCached is returned when no snapshot exists for a device.
var ErrNotCached = errors.New("risk snapshot not cached")

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RiskCache implements ports.RiskSink on Redis. Snapshots expire after ttl so
// devices that stop reporting fall out of dashboards.
type RiskCache struct {
	client redisClient
	ttl    time.Duration
}

var _ ports.RiskSink = (*RiskCache)(nil)

// NewRiskCache connects to addr and verifies the connection.
func NewRiskCache(ctx context.Context, addr string, ttl time.Duration) (*RiskCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return newRiskCache(client, ttl), nil
}

func newRiskCache(client redisClient, ttl time.Duration) *RiskCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RiskCache{client: client, ttl: ttl}
}

// StoreRisk writes the snapshot and updates the risk leaderboard.
func (c *RiskCache) StoreRisk(ctx context.Context, snap domain.DeviceRiskSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal risk snapshot: %w", err)
	}

	if err := c.client.Set(ctx, riskKeyPrefix+snap.Risk.DeviceID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store risk in redis: %w", err)
	}
	err = c.client.ZAdd(ctx, leaderboardKey, &redis.Z{
		Score:  snap.Risk.SmoothedScore,
		Member: snap.Risk.DeviceID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update risk leaderboard: %w", err)
	}
	return nil
}

// Risk returns the cached snapshot of one device.
func (c *RiskCache) Risk(ctx context.Context, deviceID string) (domain.DeviceRiskSnapshot, error) {
	data, err := c.client.Get(ctx, riskKeyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DeviceRiskSnapshot{}, fmt.Errorf("%w: %s", ErrNotCached, deviceID)
	}
	if err != nil {
		return domain.DeviceRiskSnapshot{}, fmt.Errorf("failed to read risk from redis: %w", err)
	}

	var snap domain.DeviceRiskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.DeviceRiskSnapshot{}, fmt.Errorf("failed to decode cached risk: %w", err)
	}
	return snap, nil
}

// RankedDevice is one leaderboard entry.
type RankedDevice struct {
	DeviceID string  `json:"device_id"`
	Risk     float64 `json:"risk"`
}

// TopRisk returns up to n devices ordered by smoothed risk, highest first.
func (c *RiskCache) TopRisk(ctx context.Context, n int64) ([]RankedDevice, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read risk leaderboard: %w", err)
	}

	out := make([]RankedDevice, 0, len(entries))
	for _, z := range entries {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, RankedDevice{DeviceID: id, Risk: z.Score})
	}
	return out, nil
}

func (c *RiskCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RiskCache) Close() error {
	return c.client.Close()
}
