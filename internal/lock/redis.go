package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisRetryInterval = 50 * time.Millisecond
	redisDialTimeout   = 5 * time.Second
	redisIOTimeout     = 3 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddress,
		Password:     cfg.RedisPass,
		DB:           cfg.RedisDB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		circuitbreak.TriggerError(circuitbreak.RedisService)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisLocker holds keys across processes with SET NX PX. Each lease owns a
// random token so a lease whose TTL expired cannot delete a newer holder.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, cfg *config.Config) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    time.Duration(cfg.LockTTL) * time.Second,
	}
}

func (redisLocker *RedisLocker) Lock(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()

	ticker := time.NewTicker(redisRetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := redisLocker.client.SetNX(ctx, key, token, redisLocker.ttl).Result()
		if err != nil && ctx.Err() == nil {
			logging.Logger.Error("[Lock] redis setnx failed",
				zap.String("key", key),
				zap.String("error", err.Error()),
			)

			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, err)
		}

		if acquired {
			return &redisLease{client: redisLocker.client, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (lease *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lease.client, []string{lease.key}, lease.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", lease.key, err)
	}

	if deleted == 0 {
		return ErrLockNotHeld
	}

	return nil
}

func (redisLocker *RedisLocker) Ping(ctx context.Context) error {
	return redisLocker.client.Ping(ctx).Err()
}
