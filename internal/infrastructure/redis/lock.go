package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned by Release and Extend when the lock expired or
// belongs to another owner.
var ErrLockNotHeld = errors.New("lock not held")

var (
	// Only the owner token may delete the key.
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// LockKey is the Redis key guarding name.
func LockKey(name string) string {
	return "paygate:lock:" + name
}

// Lock is a single-owner lease on a Redis key. A Lock value is not safe for
// concurrent use; each holder creates its own.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
	held   bool
}

func NewLock(client redis.UniversalClient, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    LockKey(name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire takes the lease if nobody holds it. It never blocks.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// Extend pushes the expiry ttl into the future.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return ErrLockNotHeld
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		l.held = false
		return ErrLockNotHeld
	}
	return nil
}

// Release gives the lease back. Releasing a lock that was never acquired is
// a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *Lock) Held() bool { return l.held }

// Locker hands out named leases that share one TTL.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// TryLock acquires name without blocking. The returned release func must be
// called once the guarded work is done.
func (l *Locker) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	lock := NewLock(l.client, name, l.ttl)
	ok, err := lock.TryAcquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock.Release, true, nil
}
