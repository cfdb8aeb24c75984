// Package cache provides the Redis read-side cache. Only the latest
// observation per symbol is cached; history always comes from MySQL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// RedisClient handles Redis cache operations.
type RedisClient struct {
	client    *redis.Client
	logger    *logrus.Entry
	latestTTL time.Duration
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(cfg *config.RedisConfig, log *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client:    client,
		logger:    log.WithField("component", "redis"),
		latestTTL: cfg.LatestTTL,
	}, nil
}

// Close closes the Redis connection.
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health.
func (rc *RedisClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rc.client.Ping(ctx).Err()
}

func latestKey(symbol string) string {
	return fmt.Sprintf("latest:%s", models.NormalizeSymbol(symbol))
}

// SetLatestObservation caches the most recent observation for a symbol.
func (rc *RedisClient) SetLatestObservation(ctx context.Context, symbol string, obs *models.PriceObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	if err := rc.client.Set(ctx, latestKey(symbol), data, rc.latestTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache latest observation: %w", err)
	}
	return nil
}

// GetLatestObservation returns the cached latest observation for a symbol,
// or (nil, nil) on a cache miss.
func (rc *RedisClient) GetLatestObservation(ctx context.Context, symbol string) (*models.PriceObservation, error) {
	data, err := rc.client.Get(ctx, latestKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached observation: %w", err)
	}

	var obs models.PriceObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		// A corrupt entry is treated as a miss; it will be rewritten on the
		// next update.
		rc.logger.WithError(err).WithField("symbol", symbol).Warn("Dropping corrupt cache entry")
		_ = rc.client.Del(ctx, latestKey(symbol)).Err()
		return nil, nil
	}
	return &obs, nil
}

// InvalidateLatest removes the cached latest observation for a symbol.
// Used by the correction path so reads do not serve the pre-correction row.
func (rc *RedisClient) InvalidateLatest(ctx context.Context, symbol string) error {
	return rc.client.Del(ctx, latestKey(symbol)).Err()
}
