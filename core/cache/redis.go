package cache

import (
	"context"
	"time"

	"salesflow/core/constants"
	"salesflow/core/logger"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow Redis surface the sync and webhook paths use:
// delivery de-duplication and short-lived per-integration locks.
type Cache interface {
	// MarkDeliveryProcessed records a webhook delivery id and reports whether
	// it was seen for the first time.
	MarkDeliveryProcessed(ctx context.Context, deliveryID string) (first bool, err error)
	// AcquireSyncLock takes a short TTL lock for one integration so a poll run
	// and a second poll run do not interleave. Webhooks do not take the lock;
	// revision comparison makes that race convergent.
	AcquireSyncLock(ctx context.Context, integrationID string) (bool, error)
	ReleaseSyncLock(ctx context.Context, integrationID string) error
	Close() error
}

type redisCache struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisCache(cfg RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Info("Redis cache initialized", "addr", cfg.Addr)
	return &redisCache{client: client}, nil
}

func (c *redisCache) MarkDeliveryProcessed(ctx context.Context, deliveryID string) (bool, error) {
	key := constants.RedisKeyWebhookDelivery + deliveryID
	return c.client.SetNX(ctx, key, 1, constants.WebhookDeliveryDedupTTL).Result()
}

func (c *redisCache) AcquireSyncLock(ctx context.Context, integrationID string) (bool, error) {
	key := constants.RedisKeySyncLock + integrationID
	return c.client.SetNX(ctx, key, 1, constants.SyncLockTTL).Result()
}

func (c *redisCache) ReleaseSyncLock(ctx context.Context, integrationID string) error {
	key := constants.RedisKeySyncLock + integrationID
	return c.client.Del(ctx, key).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
