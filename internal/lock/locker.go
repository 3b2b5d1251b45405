package lock

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock is no longer held")
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker grants mutual exclusion per key. Lock waits until the key is free
// or ctx is done, in which case it returns ErrLockNotAcquired.
type Locker interface {
	Lock(ctx context.Context, key string) (Lease, error)
}

func ConversationKey(callID string) string {
	return "conversation:" + callID
}

// NewLocker picks the variant named by LOCK_PROVIDER.
func NewLocker(cfg *config.Config) (Locker, error) {
	switch cfg.LockProvider {
	case config.LockProviderRedis:
		client, err := NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}

		return NewRedisLocker(client, cfg), nil
	default:
		return NewMemoryLocker(), nil
	}
}
