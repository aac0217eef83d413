package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/redis/rueidis"
)

// Locker serializes named background jobs across processes. TryLock returns
// false when another holder owns the name; the lock self-expires after ttl so
// a crashed run never wedges the schedule.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

const lockKeyPrefix = "lab-scheduler:job-lock:"

// RedisLocker implements Locker with SET NX EX, one key per job name.
type RedisLocker struct {
	client rueidis.Client
}

func NewRedisLocker(client rueidis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	cmd := l.client.B().Set().
		Key(lockKeyPrefix + name).
		Value("1").
		Nx().
		Ex(ttl).
		Build()
	err := l.client.Do(ctx, cmd).Error()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, name string) error {
	cmd := l.client.B().Del().Key(lockKeyPrefix + name).Build()
	return l.client.Do(ctx, cmd).Error()
}

// LocalLocker is the in-process fallback used when redis is disabled. It only
// protects against overlapping runs inside a single process.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[name]; ok && l.clock().Before(expiry) {
		return false, nil
	}
	l.held[name] = l.clock().Add(ttl)
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
