package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock represents a distributed lock using Redis
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to acquire the lock
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	// Use SET NX PX to atomically set the lock if it doesn't exist
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}

	l.acquired = success
	return success, nil
}

// Extend extends the lock TTL
func (l *DistributedLock) Extend(ctx context.Context, additionalTTL time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	result, err := extendLockScript.Run(
		ctx,
		l.client,
		[]string{l.key},
		l.value,
		additionalTTL.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}

	return nil
}

// Release releases the lock
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(
		ctx,
		l.client,
		[]string{l.key},
		l.value,
	).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}

	l.acquired = false
	return nil
}

// TransactionLocker guards against the same payment page or invoice being
// driven by two requests at once. Held locks are renewed every third of ttl
// until released, so flows outliving ttl stay protected.
type TransactionLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewTransactionLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *TransactionLocker {
	return &TransactionLocker{client: client, ttl: ttl, logger: logger}
}

// Lock takes the lock for key or fails with ErrTransactionInProgress. Keys
// are hashed since payment URLs can be long. The returned release stops the
// renewal and may be called more than once.
func (t *TransactionLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock := NewDistributedLock(t.client, "txn:"+uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(), t.ttl)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domainErrors.ErrTransactionInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go t.keepAlive(lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return lock.Release(ctx)
	}, nil
}

func (t *TransactionLocker) keepAlive(lock *DistributedLock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := t.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := lock.Extend(ctx, t.ttl)
		cancel()
		if err != nil {
			t.logger.Error().Err(err).Str("lock", lock.key).Msg("transaction lock lost, duplicate submissions are no longer detected")
			return
		}
	}
}
